package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// GetWeatherTool returns current conditions for a location via
// weatherapi.com.
type GetWeatherTool struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewGetWeatherTool creates a get_weather tool. baseURL defaults to the
// public weatherapi.com endpoint.
func NewGetWeatherTool(apiKey, baseURL string) *GetWeatherTool {
	if baseURL == "" {
		baseURL = "https://api.weatherapi.com/v1"
	}
	return &GetWeatherTool{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// Name returns the tool name.
func (t *GetWeatherTool) Name() string {
	return ToolGetWeather
}

// Definition returns the model-facing definition.
func (t *GetWeatherTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolGetWeather,
		Description: "Get current weather conditions for a location (city name, postal code, or lat,lon).",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"location": {
					Type:        "string",
					Description: "Location to look up, e.g. 'Berlin' or '48.85,2.35'",
				},
			},
			Required: []string{"location"},
		},
		Idempotent: true,
	}
}

type weatherResponse struct {
	Location struct {
		Name    string `json:"name"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC     float64 `json:"temp_c"`
		FeelsC    float64 `json:"feelslike_c"`
		Humidity  int     `json:"humidity"`
		WindKph   float64 `json:"wind_kph"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Exec implements Tool.
func (t *GetWeatherTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	location, err := stringArg(args, "location")
	if err != nil {
		return nil, err
	}
	if t.apiKey == "" {
		return errorResult("weather lookups are not configured (missing api key)")
	}

	reqURL := fmt.Sprintf("%s/current.json?key=%s&q=%s",
		t.baseURL, url.QueryEscape(t.apiKey), url.QueryEscape(location))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return errorResult("failed to create request: " + err.Error())
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read weather response: %w", err)
	}

	var parsed weatherResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse weather response: %w", err)
	}
	if parsed.Error != nil {
		return errorResult("weather lookup failed: " + parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errorResult(fmt.Sprintf("weather lookup failed: HTTP %d", resp.StatusCode))
	}

	return jsonResult(map[string]any{
		"location":     fmt.Sprintf("%s, %s", parsed.Location.Name, parsed.Location.Country),
		"condition":    parsed.Current.Condition.Text,
		"temp_c":       parsed.Current.TempC,
		"feelslike_c":  parsed.Current.FeelsC,
		"humidity_pct": parsed.Current.Humidity,
		"wind_kph":     parsed.Current.WindKph,
	})
}
