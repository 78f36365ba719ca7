package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/i474232898/ghi-aggregation/internal/irradiance"
)

const (
	DefaultGeminiURL   = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel = "gemini-1.5-flash"

	geminiAPIVersion = "v1beta"
)

var (
	errEmptyCandidate = errors.New("response has no candidate text")
	errNoGeminiKey    = errors.New("gemini api key is not configured")
)

// GeminiGateway implements irradiance.ForecastGateway with the Gemini
// generateContent endpoint in JSON response mode.
type GeminiGateway struct {
	name    string
	model   string
	client  *genai.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// NewGeminiGateway builds the SDK client. The API key travels in a request
// header, never in the URL.
func NewGeminiGateway(ctx context.Context, httpClient *http.Client, apiKey, model, baseURL string) (*GeminiGateway, error) {
	if apiKey == "" {
		return nil, errNoGeminiKey
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimRight(baseURL, "/") + "/",
			APIVersion: geminiAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}

	return &GeminiGateway{
		name:    "gemini",
		model:   model,
		client:  client,
		backoff: DefaultBackoff,
		circuit: newBreaker("gemini"),
	}, nil
}

// WithBackoff overrides the retry policy.
func (g *GeminiGateway) WithBackoff(b BackoffConfig) *GeminiGateway {
	g.backoff = b
	return g
}

func (g *GeminiGateway) Name() string {
	return g.name
}

// geminiForecast is the JSON document the prompt asks the model to return.
type geminiForecast struct {
	Method      string  `json:"method"`
	ErrorMargin float64 `json:"error_margin"`
	Notes       string  `json:"notes"`
	Predictions []struct {
		Month    string  `json:"month"`
		ValueKWh float64 `json:"value_kwh"`
	} `json:"predictions"`
}

func (g *GeminiGateway) Forecast(ctx context.Context, req irradiance.ForecastRequest) (irradiance.Prediction, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return irradiance.Prediction{}, err
	}

	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	result, err := callWithResilience(ctx, g.backoff, g.circuit, func(ctx context.Context) (interface{}, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err != nil {
			return nil, classifyAPIError(err)
		}
		return resp, nil
	})
	if err != nil {
		return irradiance.Prediction{}, fmt.Errorf("gemini: %w", err)
	}

	text, err := candidateText(result.(*genai.GenerateContentResponse))
	if err != nil {
		return irradiance.Prediction{}, fmt.Errorf("gemini: %w", err)
	}
	return parseForecast(text)
}

// classifyAPIError maps SDK status errors onto the retry taxonomy.
func classifyAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", statusError(apiErr.Code), apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return fmt.Errorf("%w: %s", statusError(apiErrPtr.Code), apiErrPtr.Message)
	}
	return err
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyCandidate
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", errEmptyCandidate
	}
	return b.String(), nil
}

func buildPrompt(req irradiance.ForecastRequest) (string, error) {
	history, err := json.Marshal(req.History)
	if err != nil {
		return "", err
	}
	months := make([]string, len(req.Months))
	for i, m := range req.Months {
		months[i] = string(m)
	}

	var b strings.Builder
	b.WriteString("You are a solar resource analyst. Below is the monthly global horizontal irradiance (GHI) ")
	fmt.Fprintf(&b, "history of the municipality %s in kWh/m²/day, as JSON:\n%s\n\n", req.Municipality, history)
	fmt.Fprintf(&b, "Forecast the GHI for year %d for exactly these months: %s.\n", req.TargetYear, strings.Join(months, ", "))
	b.WriteString("Answer only with a JSON object of the form ")
	b.WriteString(`{"method": string, "error_margin": number, "notes": string, "predictions": [{"month": string, "value_kwh": number}]}`)
	b.WriteString(" using the same upper-case Spanish month names as the input.")
	return b.String(), nil
}

func parseForecast(text string) (irradiance.Prediction, error) {
	// Models sometimes wrap JSON in a markdown fence even in JSON mode.
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var f geminiForecast
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		return irradiance.Prediction{}, fmt.Errorf("gemini: malformed forecast: %w", err)
	}

	points := make([]irradiance.MonthValue, 0, len(f.Predictions))
	for _, p := range f.Predictions {
		m, err := irradiance.ParseMonth(p.Month)
		if err != nil {
			return irradiance.Prediction{}, fmt.Errorf("gemini: %w", err)
		}
		points = append(points, irradiance.MonthValue{Month: m, ValueKWh: irradiance.Round(p.ValueKWh, 2)})
	}

	return irradiance.Prediction{
		Points:      points,
		Method:      f.Method,
		ErrorMargin: f.ErrorMargin,
		Notes:       f.Notes,
	}, nil
}
