package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/ghi-aggregation/internal/irradiance"
)

func forecastRequest() irradiance.ForecastRequest {
	return irradiance.ForecastRequest{
		Municipality: "Tunja",
		TargetYear:   2024,
		Months:       []irradiance.Month{irradiance.Enero, irradiance.Febrero},
		History: []irradiance.HistoricalPoint{
			{Month: irradiance.Enero, Year: 2023, ValueKWh: 5.1},
			{Month: irradiance.Febrero, Year: 2023, ValueKWh: 5.5},
		},
	}
}

// geminiReply renders text in the generateContent response shape.
func geminiReply(t *testing.T, text string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": text}},
			}},
		},
	})
	require.NoError(t, err)
	return b
}

type capturedRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

func newTestGemini(t *testing.T, srv *httptest.Server, apiKey, model string) *GeminiGateway {
	t.Helper()
	gw, err := NewGeminiGateway(context.Background(), srv.Client(), apiKey, model, srv.URL)
	require.NoError(t, err)
	return gw.WithBackoff(fastBackoff)
}

func TestGeminiGateway_Forecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"))

		var req capturedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		require.Len(t, req.Contents, 1)
		require.NotEmpty(t, req.Contents[0].Parts)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "Tunja")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(geminiReply(t, "```json\n"+
			`{"method": "seasonal trend", "error_margin": 0.3, "notes": "stable", `+
			`"predictions": [{"month": "enero", "value_kwh": 5.123}, {"month": "FEBRERO", "value_kwh": 5.6}]}`+
			"\n```"))
	}))
	defer srv.Close()

	gw := newTestGemini(t, srv, "secret", "test-model")
	assert.Equal(t, "gemini", gw.Name())

	pred, err := gw.Forecast(context.Background(), forecastRequest())
	require.NoError(t, err)
	assert.Equal(t, irradiance.Prediction{
		Points: []irradiance.MonthValue{
			{Month: irradiance.Enero, ValueKWh: 5.12},
			{Month: irradiance.Febrero, ValueKWh: 5.6},
		},
		Method:      "seasonal trend",
		ErrorMargin: 0.3,
		Notes:       "stable",
	}, pred)
}

func TestGeminiGateway_Errors(t *testing.T) {
	_, err := NewGeminiGateway(context.Background(), http.DefaultClient, "", "", "")
	assert.ErrorIs(t, err, errNoGeminiKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	_, err = newTestGemini(t, srv, "secret", "").Forecast(context.Background(), forecastRequest())
	assert.ErrorIs(t, err, errEmptyCandidate)
	assert.NotContains(t, err.Error(), "gemini: gemini:")
}

func TestGeminiGateway_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"code": 503, "message": "model overloaded", "status": "UNAVAILABLE"}}`))
	}))
	defer srv.Close()

	_, err := newTestGemini(t, srv, "secret", "").Forecast(context.Background(), forecastRequest())
	assert.ErrorIs(t, err, errServerError)
}

func TestGeminiGateway_KeyNeverInError(t *testing.T) {
	const key = "SUPERSECRETKEY"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "bad prompt", "status": "INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	_, err := newTestGemini(t, srv, key, "").Forecast(context.Background(), forecastRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnexpected)
	assert.NotContains(t, err.Error(), key)

	// Transport failures carry the request URL in their message.
	srv.Close()
	_, err = newTestGemini(t, srv, key, "").Forecast(context.Background(), forecastRequest())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), key)
}

func TestGeminiGateway_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGemini(t, srv, "secret", "").Forecast(ctx, forecastRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseForecast(t *testing.T) {
	_, err := parseForecast("not json")
	assert.ErrorContains(t, err, "malformed forecast")

	_, err = parseForecast(`{"predictions": [{"month": "JANUARY", "value_kwh": 5}]}`)
	assert.ErrorIs(t, err, irradiance.ErrInvalidMonth)

	pred, err := parseForecast(`{"predictions": []}`)
	require.NoError(t, err)
	assert.Empty(t, pred.Points)
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := buildPrompt(forecastRequest())
	require.NoError(t, err)
	assert.Contains(t, prompt, "year 2024")
	assert.Contains(t, prompt, "ENERO, FEBRERO")
	assert.Contains(t, prompt, `"value_kwh"`)
}
