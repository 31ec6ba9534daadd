package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const schemaRegistryContentType = "application/vnd.schemaregistry.v1+json"

// errSubjectNotFound is returned by lookup when the registry has no matching schema under the subject.
var errSubjectNotFound = errors.New("schema registry: subject or schema not found")

// SchemaRegistryClient registers JSON schemas with a Confluent-compatible registry.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSchemaRegistryClient constructs a client for baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the ID of schema under subject, registering it when the registry does not know it yet.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	id, err := c.lookup(ctx, subject, schema)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, errSubjectNotFound) {
		return 0, err
	}
	return c.register(ctx, subject, schema)
}

// lookup asks whether this exact schema is already registered under subject.
func (c *SchemaRegistryClient) lookup(ctx context.Context, subject, schema string) (int, error) {
	return c.post(ctx, "/subjects/"+url.PathEscape(subject), schema)
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.post(ctx, "/subjects/"+url.PathEscape(subject)+"/versions", schema)
	if errors.Is(err, errSubjectNotFound) {
		return 0, fmt.Errorf("schema registry: register %s: unexpected 404", subject)
	}
	return id, err
}

func (c *SchemaRegistryClient) post(ctx context.Context, path, schema string) (int, error) {
	body, err := json.Marshal(schemaRequest{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", schemaRegistryContentType)
	req.Header.Set("Accept", schemaRegistryContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, errSubjectNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("schema registry: %s %s: status %d: %s", req.Method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("schema registry: decode response: %w", err)
	}
	if payload.ID <= 0 {
		return 0, fmt.Errorf("schema registry: %s returned no schema id", path)
	}
	return payload.ID, nil
}

type schemaRequest struct {
	SchemaType string `json:"schemaType"`
	Schema     string `json:"schema"`
}
