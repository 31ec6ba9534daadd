package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthtrack/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{DayKey: time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC), ID: "5f0c7a52-2d0e-4c8b-9a51-3c9e2f4b8d10"}

	token := EncodeCursor(in)
	require.NotEmpty(t, token)

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))

	_, err = DecodeCursor("!!!")
	require.Error(t, err)

	_, err = DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("2024-03-03")))
	require.Error(t, err)

	_, err = DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("yesterday|abc")))
	require.Error(t, err)
}

func TestDecodeCursorRequiresUUID(t *testing.T) {
	for _, id := range []string{"abc", "1; DROP TABLE activity_buckets", "5f0c7a52-2d0e-4c8b-9a51"} {
		_, err := DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("2024-03-03|" + id)))
		require.Error(t, err, id)
	}

	c, err := DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("2024-03-03|5F0C7A52-2D0E-4C8B-9A51-3C9E2F4B8D10")))
	require.NoError(t, err)
	require.Equal(t, "5f0c7a52-2d0e-4c8b-9a51-3c9e2f4b8d10", c.ID)
}
