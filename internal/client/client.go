package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mzansi-solutions/farm-alert-service/internal/circuitbreaker"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
	"github.com/mzansi-solutions/farm-alert-service/internal/validation"
)

// WeatherClient fetches current conditions and daily forecasts for a location label
// or a "lat,lon" pair.
type WeatherClient interface {
	GetCurrent(ctx context.Context, location string) (models.Observation, error)
	GetForecast(ctx context.Context, location string, days int) (models.Forecast, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrCircuitOpen      = errors.New("weather provider circuit open")
)

const (
	endpointCurrent  = "current"
	endpointForecast = "forecast"

	// MaxForecastDays is the longest daily forecast the provider serves.
	MaxForecastDays = 16
)

// WeatherbitClient talks to a Weatherbit-compatible REST API with metric units.
type WeatherbitClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewWeatherbitClient(apiKey, apiURL string, timeout time.Duration) (*WeatherbitClient, error) {
	return NewWeatherbitClientWithRetry(apiKey, apiURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewWeatherbitClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*WeatherbitClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	return &WeatherbitClient{
		apiKey:         apiKey,
		apiURL:         strings.TrimRight(apiURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards every provider call with cb. Pass nil to disable.
func (c *WeatherbitClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// IsBreakerFailure reports whether err says something about provider health.
// Unknown locations and bad keys are caller problems and do not trip the breaker.
func IsBreakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.Is(err, ErrLocationNotFound) && !errors.Is(err, ErrInvalidAPIKey)
}

type weatherbitDay struct {
	Datetime string   `json:"datetime"`
	CityName string   `json:"city_name"`
	Temp     *float64 `json:"temp"`
	AppTemp  *float64 `json:"app_temp"`
	MaxTemp  *float64 `json:"max_temp"`
	MinTemp  *float64 `json:"min_temp"`
	RH       *float64 `json:"rh"`
	WindSpd  *float64 `json:"wind_spd"`
	Precip   *float64 `json:"precip"`
	Pop      *float64 `json:"pop"`
	UV       *float64 `json:"uv"`
	Weather  *struct {
		Description string `json:"description"`
	} `json:"weather"`
}

type currentResponse struct {
	Data  []weatherbitDay `json:"data"`
	Count int             `json:"count"`
}

type forecastResponse struct {
	Data        []weatherbitDay `json:"data"`
	CityName    string          `json:"city_name"`
	CountryCode string          `json:"country_code"`
	Timezone    string          `json:"timezone"`
}

// GetCurrent returns current conditions. Wind speed is reported in km/h.
func (c *WeatherbitClient) GetCurrent(ctx context.Context, location string) (models.Observation, error) {
	var resp currentResponse
	if err := c.fetch(ctx, endpointCurrent, "current", location, nil, &resp); err != nil {
		return models.Observation{}, err
	}
	if len(resp.Data) == 0 {
		return models.Observation{}, ErrLocationNotFound
	}
	obs := mapDay(resp.Data[0], location, models.WindUnitKPH)
	obs.Date = ""
	return obs, nil
}

// GetForecast returns up to days daily entries (1..MaxForecastDays). Wind speed is
// reported in m/s.
func (c *WeatherbitClient) GetForecast(ctx context.Context, location string, days int) (models.Forecast, error) {
	if days < 1 || days > MaxForecastDays {
		return models.Forecast{}, fmt.Errorf("%w: days must be 1..%d", validation.ErrInvalidDays, MaxForecastDays)
	}
	extra := url.Values{}
	extra.Set("days", strconv.Itoa(days))

	var resp forecastResponse
	if err := c.fetch(ctx, endpointForecast, "forecast/daily", location, extra, &resp); err != nil {
		return models.Forecast{}, err
	}
	if len(resp.Data) == 0 {
		return models.Forecast{}, ErrLocationNotFound
	}

	name := resp.CityName
	if name == "" {
		name = location
	}
	out := models.Forecast{
		Location:  strings.ToLower(name),
		Country:   resp.CountryCode,
		Timezone:  resp.Timezone,
		Days:      make([]models.Observation, 0, len(resp.Data)),
		Timestamp: time.Now(),
	}
	for _, d := range resp.Data {
		if d.CityName == "" {
			d.CityName = name
		}
		out.Days = append(out.Days, mapDay(d, location, models.WindUnitMPS))
	}
	return out, nil
}

// fetch runs the request with retries, behind the circuit breaker when one is set.
func (c *WeatherbitClient) fetch(ctx context.Context, endpoint, path, location string, extra url.Values, out interface{}) error {
	run := func() error { return c.fetchWithRetry(ctx, endpoint, path, location, extra, out) }
	if c.breaker == nil {
		return run()
	}
	err := c.breaker.Call(ctx, run)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (c *WeatherbitClient) fetchWithRetry(ctx context.Context, endpoint, path, location string, extra url.Values, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.WithLabelValues(endpoint).Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.callAPI(ctx, endpoint, path, location, extra, out)
		if err == nil {
			return nil
		}

		lastErr = err
		observability.WeatherAPIErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
		if !c.isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *WeatherbitClient) callAPI(ctx context.Context, endpoint, path, location string, extra url.Values, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, location, extra)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// isRetryable covers rate limits, 5xx and per-attempt timeouts. A cancelled caller
// context is never retried.
func (c *WeatherbitClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}

func (c *WeatherbitClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *WeatherbitClient) buildRequest(ctx context.Context, path, location string, extra url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL + "/" + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	if lat, lon, ok := validation.ParseCoordinates(location); ok {
		params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	} else {
		params.Set("city", location)
	}
	params.Set("key", c.apiKey)
	params.Set("units", "M")
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *WeatherbitClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNoContent, http.StatusNotFound:
		// the provider answers 204 for a city it cannot resolve
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func mapDay(d weatherbitDay, location, windUnit string) models.Observation {
	name := d.CityName
	if name == "" {
		name = location
	}
	desc := ""
	if d.Weather != nil {
		desc = d.Weather.Description
	}
	date := d.Datetime
	if len(date) > 10 {
		date = date[:10]
	}

	return models.Observation{
		Location:          strings.ToLower(name),
		Date:              date,
		Description:       desc,
		Temperature:       d.Temp,
		FeelsLike:         d.AppTemp,
		MinTemp:           d.MinTemp,
		MaxTemp:           d.MaxTemp,
		Humidity:          d.RH,
		WindSpeed:         d.WindSpd,
		Precipitation:     d.Precip,
		PrecipProbability: d.Pop,
		UVIndex:           d.UV,
		WindUnit:          windUnit,
		Timestamp:         time.Now(),
	}
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode == http.StatusNoContent {
		return "not_found"
	}
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues one unretried current-conditions call for a known city.
func (c *WeatherbitClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "current", "Pretoria", nil)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
