package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/healthtrack/internal/daykey"
	"example.com/healthtrack/internal/domain"
)

const maxBodyBytes = 1 << 20

// LogMetricRequest is the payload for POST /v1/patients/{patientID}/metrics/{metric}.
type LogMetricRequest struct {
	Value *float64 `json:"value"`
	Mode  string   `json:"mode,omitempty"`
	Unit  string   `json:"unit,omitempty"`
	Date  string   `json:"date,omitempty"`
}

func (r LogMetricRequest) toInput(metric domain.Metric) (domain.MetricInput, error) {
	if r.Value == nil {
		return domain.MetricInput{}, &domain.Error{Kind: domain.KindInvalidInput, Message: "value is required"}
	}
	day, err := optionalDate(r.Date, "date")
	if err != nil {
		return domain.MetricInput{}, err
	}
	return domain.MetricInput{
		Metric: metric,
		Value:  *r.Value,
		Mode:   domain.Mode(strings.ToLower(strings.TrimSpace(r.Mode))),
		Unit:   domain.WeightUnit(strings.ToLower(strings.TrimSpace(r.Unit))),
		Day:    day,
	}, nil
}

// SetGoalRequest is the payload for PUT /v1/patients/{patientID}/goals/{metric}.
type SetGoalRequest struct {
	Goal *float64 `json:"goal"`
}

// LogSleepRequest is the payload for POST /v1/patients/{patientID}/sleep.
// Start and End are wall-clock times such as "10:30 PM" or "22:30".
type LogSleepRequest struct {
	Date  string `json:"date,omitempty"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// AddMedicationRequest is the payload for POST /v1/patients/{patientID}/medications.
type AddMedicationRequest struct {
	Name       string   `json:"name"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date,omitempty"`
	Recurrence []string `json:"recurrence"`
	DailyTimes []string `json:"daily_times"`
}

func (r AddMedicationRequest) toInput() (domain.AddMedicationInput, error) {
	start, err := optionalDate(r.StartDate, "start_date")
	if err != nil {
		return domain.AddMedicationInput{}, err
	}
	end, err := optionalDate(r.EndDate, "end_date")
	if err != nil {
		return domain.AddMedicationInput{}, err
	}
	in := domain.AddMedicationInput{
		Name:       r.Name,
		StartDate:  start,
		Recurrence: r.Recurrence,
		DailyTimes: r.DailyTimes,
	}
	if !end.IsZero() {
		in.EndDate = &end
	}
	return in, nil
}

// SetCompletionRequest is the payload for PUT .../completions/{date}.
type SetCompletionRequest struct {
	Completed *bool `json:"completed"`
}

func optionalDate(raw, field string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	day, err := daykey.Parse(raw)
	if err != nil {
		return time.Time{}, &domain.Error{Kind: domain.KindInvalidInput, Message: field + " must be YYYY-MM-DD or RFC3339", Cause: err}
	}
	return day, nil
}

// parseOptionalDate writes a 400 and returns false when raw is present but malformed.
func parseOptionalDate(w http.ResponseWriter, raw, field string) (time.Time, bool) {
	day, err := optionalDate(raw, field)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), field+" must be YYYY-MM-DD or RFC3339")
		return time.Time{}, false
	}
	return day, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), "request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, string(domain.KindInvalidInput), "unable to parse body")
		return false
	}
	return true
}
