package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsFormatMessages(t *testing.T) {
	err := Configuration("step must be positive, got %v", -0.5)
	assert.Equal(t, KindConfiguration, err.Kind)
	assert.Equal(t, "step must be positive, got -0.5", err.Message)
	assert.Equal(t, "CONFIGURATION_ERROR: step must be positive, got -0.5", err.Error())

	assert.Equal(t, KindDataUnavailable, DataUnavailable("no candles").Kind)
	assert.Equal(t, KindRunExecution, RunExecution("boom").Kind)
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"configuration maps to bad request", Configuration("bad range"), http.StatusBadRequest},
		{"data unavailable maps to not found", DataUnavailable("no candles"), http.StatusNotFound},
		{"run execution maps to internal error", RunExecution("boom"), http.StatusInternalServerError},
		{"explicit status wins", Configuration("already running").WithStatus(http.StatusConflict), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestWithContextAccumulates(t *testing.T) {
	err := DataUnavailable("no candles for window").
		WithContext("symbol", "XAUUSD").
		WithContext("timeframe", "H1")

	assert.Equal(t, "XAUUSD", err.Context["symbol"])
	assert.Equal(t, "H1", err.Context["timeframe"])
}

func TestJSONShape(t *testing.T) {
	t.Run("context included when present", func(t *testing.T) {
		err := DataUnavailable("no candles").WithContext("symbol", "XAUUSD")

		body, marshalErr := json.Marshal(err)
		require.NoError(t, marshalErr)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(body, &decoded))
		assert.Equal(t, "DATA_UNAVAILABLE", decoded["kind"])
		assert.Equal(t, "no candles", decoded["message"])
		assert.Contains(t, decoded, "context")
	})

	t.Run("context omitted when empty", func(t *testing.T) {
		body, marshalErr := json.Marshal(Configuration("bad range"))
		require.NoError(t, marshalErr)
		assert.NotContains(t, string(body), "context")
	})
}

func TestFrom(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.Nil(t, From(nil))
	})

	t.Run("structured errors keep their kind", func(t *testing.T) {
		original := Configuration("zero strategies selected")
		assert.Same(t, original, From(original))
	})

	t.Run("wrapped structured errors are unwrapped", func(t *testing.T) {
		original := DataUnavailable("no candles")
		wrapped := fmt.Errorf("loading window: %w", original)

		assert.Same(t, original, From(wrapped))
	})

	t.Run("foreign errors become run execution errors", func(t *testing.T) {
		err := From(errors.New("database locked"))
		assert.Equal(t, KindRunExecution, err.Kind)
		assert.Equal(t, "database locked", err.Message)
	})
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("submitting: %w", Configuration("batch size must be positive"))

	assert.True(t, IsKind(err, KindConfiguration))
	assert.False(t, IsKind(err, KindDataUnavailable))
	assert.False(t, IsKind(errors.New("plain"), KindConfiguration))
}
