package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mzansi-solutions/farm-alert-service/internal/alerts"
	"github.com/mzansi-solutions/farm-alert-service/internal/client"
	"github.com/mzansi-solutions/farm-alert-service/internal/models"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string
	Version    string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	// Advisor is enabled when a Gemini key is present and advisor.enabled is not false.
	AdvisorEnabled      bool
	GeminiAPIKey        string
	AdvisorURL          string
	AdvisorModel        string
	AdvisorTimeout      time.Duration
	AdvisorRetryMax     int
	AdvisorRetryWaitMin time.Duration
	AdvisorRetryWaitMax time.Duration

	RequestTimeout      time.Duration
	LocationMinLength   int
	LocationMaxLength   int
	DefaultForecastDays int
	MaxForecastDays     int

	CacheBackend          string // "in_memory" or "memcached"
	CurrentTTL            time.Duration
	ForecastTTL           time.Duration
	StaleCacheTTL         time.Duration // 0 disables stale fallback
	CoalesceEnabled       bool
	CoalesceTimeout       time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	StoreBackend string // "memory" or "redis"
	RedisURL     string
	RedisPrefix  string

	// Sessions are disabled when SessionSigningKey is empty.
	SessionSigningKey string
	SessionIssuer     string
	SessionAudience   string
	SessionTTL        time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ReadyDelay           time.Duration
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	DegradedRetryInitial time.Duration
	DegradedRetryMax     time.Duration

	CurrentThresholds  alerts.Thresholds
	ForecastThresholds alerts.Thresholds
	CurrentWindUnit    string
	ForecastWindUnit   string
	RefreshInterval    time.Duration // 0 runs the refresher once at startup only
	RefreshMode        string
	RefreshDays        int

	TrackedLocations []string

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

// thresholdOverrides mirrors alerts.Thresholds; unset fields keep the defaults.
type thresholdOverrides struct {
	HeatWarning  *float64 `yaml:"heat_warning"`
	HeatAdvisory *float64 `yaml:"heat_advisory"`
	WindWarning  *float64 `yaml:"wind_warning"`
	WindAdvisory *float64 `yaml:"wind_advisory"`
	RainHumidity *float64 `yaml:"rain_humidity"`
	ColdWarning  *float64 `yaml:"cold_warning"`
	ColdAdvisory *float64 `yaml:"cold_advisory"`
	FireTemp     *float64 `yaml:"fire_temp"`
	FireHumidity *float64 `yaml:"fire_humidity"`
	FireWind     *float64 `yaml:"fire_wind"`
	UVIndex      *float64 `yaml:"uv_index"`
	FloodPrecip  *float64 `yaml:"flood_precip"`
	FrostMinTemp *float64 `yaml:"frost_min_temp"`
	DroughtRain  *float64 `yaml:"drought_rain"`
}

type fileConfig struct {
	Server struct {
		Port    string `yaml:"port"`
		Version string `yaml:"version"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Advisor struct {
		Enabled      *bool  `yaml:"enabled"`
		URL          string `yaml:"url"`
		Model        string `yaml:"model"`
		Timeout      string `yaml:"timeout"`
		RetryMax     int    `yaml:"retry_max"`
		RetryWaitMin string `yaml:"retry_wait_min"`
		RetryWaitMax string `yaml:"retry_wait_max"`
	} `yaml:"advisor"`

	Request struct {
		Timeout           string `yaml:"timeout"`
		LocationMinLength int    `yaml:"location_min_length"`
		LocationMaxLength int    `yaml:"location_max_length"`
		DefaultDays       int    `yaml:"default_forecast_days"`
		MaxDays           int    `yaml:"max_forecast_days"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		CurrentTTL      string `yaml:"current_ttl"`
		ForecastTTL     string `yaml:"forecast_ttl"`
		StaleTTL        string `yaml:"stale_ttl"`
		CoalesceEnabled *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Store struct {
		Backend string `yaml:"backend"`
		Redis   struct {
			URL    string `yaml:"url"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"store"`

	Session struct {
		Issuer   string `yaml:"issuer"`
		Audience string `yaml:"audience"`
		TTL      string `yaml:"ttl"`
	} `yaml:"session"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	CircuitBreaker struct {
		Enabled          *bool  `yaml:"enabled"`
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Lifecycle struct {
		ReadyDelay           string `yaml:"ready_delay"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		DegradedRetryInitial string `yaml:"degraded_retry_initial"`
		DegradedRetryMax     string `yaml:"degraded_retry_max"`
	} `yaml:"lifecycle"`

	Alerts struct {
		Current          thresholdOverrides `yaml:"current"`
		Forecast         thresholdOverrides `yaml:"forecast"`
		CurrentWindUnit  string             `yaml:"current_wind_unit"`
		ForecastWindUnit string             `yaml:"forecast_wind_unit"`
		RefreshInterval  string             `yaml:"refresh_interval"`
		RefreshMode      string             `yaml:"refresh_mode"`
		RefreshDays      int                `yaml:"refresh_days"`
	} `yaml:"alerts"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey     string `yaml:"weather_api_key"`
	GeminiAPIKey      string `yaml:"gemini_api_key"`
	SessionSigningKey string `yaml:"session_signing_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml
// under the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir is Load rooted at dir. Keys come from WEATHER_API_KEY, GEMINI_API_KEY and
// SESSION_SIGNING_KEY or the secrets file; the environment wins.
func LoadDir(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.Version = fc.Server.Version
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	cfg.WeatherAPIKey = envOr("WEATHER_API_KEY", sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.weatherbit.io/v2.0"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 3*time.Second)

	cfg.GeminiAPIKey = envOr("GEMINI_API_KEY", sec.GeminiAPIKey)
	cfg.AdvisorEnabled = cfg.GeminiAPIKey != "" && (fc.Advisor.Enabled == nil || *fc.Advisor.Enabled)
	cfg.AdvisorURL = fc.Advisor.URL
	if cfg.AdvisorURL == "" {
		cfg.AdvisorURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	cfg.AdvisorModel = fc.Advisor.Model
	if cfg.AdvisorModel == "" {
		cfg.AdvisorModel = "gemini-2.5-flash"
	}
	cfg.AdvisorTimeout = parseDuration(fc.Advisor.Timeout, 15*time.Second)
	cfg.AdvisorRetryMax = fc.Advisor.RetryMax
	if cfg.AdvisorRetryMax <= 0 {
		cfg.AdvisorRetryMax = 2
	}
	cfg.AdvisorRetryWaitMin = parseDuration(fc.Advisor.RetryWaitMin, 500*time.Millisecond)
	cfg.AdvisorRetryWaitMax = parseDuration(fc.Advisor.RetryWaitMax, 3*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.LocationMinLength = fc.Request.LocationMinLength
	if cfg.LocationMinLength <= 0 {
		cfg.LocationMinLength = 1
	}
	cfg.LocationMaxLength = fc.Request.LocationMaxLength
	if cfg.LocationMaxLength <= 0 {
		cfg.LocationMaxLength = 100
	}
	cfg.MaxForecastDays = fc.Request.MaxDays
	if cfg.MaxForecastDays <= 0 {
		cfg.MaxForecastDays = client.MaxForecastDays
	}
	cfg.DefaultForecastDays = fc.Request.DefaultDays
	if cfg.DefaultForecastDays <= 0 {
		cfg.DefaultForecastDays = 7
	}

	cfg.CacheBackend = lowerEnvOr("CACHE_BACKEND", fc.Cache.Backend)
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CurrentTTL = parseDuration(fc.Cache.CurrentTTL, 5*time.Minute)
	cfg.ForecastTTL = parseDuration(fc.Cache.ForecastTTL, 30*time.Minute)
	cfg.StaleCacheTTL = parseDurationOrZero(fc.Cache.StaleTTL, time.Hour)
	if cfg.StaleCacheTTL < 0 {
		cfg.StaleCacheTTL = 0
	}
	cfg.CoalesceEnabled = fc.Cache.CoalesceEnabled == nil || *fc.Cache.CoalesceEnabled
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 5*time.Second)
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", strings.TrimSpace(fc.Cache.Memcached.Addrs))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.StoreBackend = lowerEnvOr("STORE_BACKEND", fc.Store.Backend)
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "memory"
	}
	cfg.RedisURL = envOr("REDIS_URL", strings.TrimSpace(fc.Store.Redis.URL))
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}
	cfg.RedisPrefix = fc.Store.Redis.Prefix
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = "farm:"
	}

	cfg.SessionSigningKey = envOr("SESSION_SIGNING_KEY", sec.SessionSigningKey)
	cfg.SessionIssuer = fc.Session.Issuer
	cfg.SessionAudience = fc.Session.Audience
	cfg.SessionTTL = parseDuration(fc.Session.TTL, 24*time.Hour)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cfg.CircuitBreakerEnabled = fc.CircuitBreaker.Enabled == nil || *fc.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ReadyDelay = parseDurationOrZero(fc.Lifecycle.ReadyDelay, 0)
	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}
	cfg.DegradedRetryInitial = parseDuration(fc.Lifecycle.DegradedRetryInitial, time.Minute)
	cfg.DegradedRetryMax = parseDuration(fc.Lifecycle.DegradedRetryMax, 20*time.Minute)

	cfg.CurrentThresholds = fc.Alerts.Current.apply(alerts.DefaultThresholds())
	cfg.ForecastThresholds = fc.Alerts.Forecast.apply(alerts.DefaultForecastThresholds())
	cfg.CurrentWindUnit = fc.Alerts.CurrentWindUnit
	if cfg.CurrentWindUnit == "" {
		cfg.CurrentWindUnit = models.WindUnitKPH
	}
	cfg.ForecastWindUnit = fc.Alerts.ForecastWindUnit
	if cfg.ForecastWindUnit == "" {
		cfg.ForecastWindUnit = models.WindUnitMPS
	}
	cfg.RefreshInterval = parseDurationOrZero(fc.Alerts.RefreshInterval, 15*time.Minute)
	cfg.RefreshMode = strings.ToLower(strings.TrimSpace(fc.Alerts.RefreshMode))
	if cfg.RefreshMode == "" {
		cfg.RefreshMode = models.ModeForecast
	}
	cfg.RefreshDays = fc.Alerts.RefreshDays
	if cfg.RefreshDays <= 0 {
		cfg.RefreshDays = 7
	}

	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func lowerEnvOr(key, fallback string) string {
	return strings.ToLower(strings.TrimSpace(envOr(key, fallback)))
}

func (o thresholdOverrides) apply(t alerts.Thresholds) alerts.Thresholds {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&t.HeatWarning, o.HeatWarning)
	set(&t.HeatAdvisory, o.HeatAdvisory)
	set(&t.WindWarning, o.WindWarning)
	set(&t.WindAdvisory, o.WindAdvisory)
	set(&t.RainHumidity, o.RainHumidity)
	set(&t.ColdWarning, o.ColdWarning)
	set(&t.ColdAdvisory, o.ColdAdvisory)
	set(&t.FireTemp, o.FireTemp)
	set(&t.FireHumidity, o.FireHumidity)
	set(&t.FireWind, o.FireWind)
	set(&t.UVIndex, o.UVIndex)
	set(&t.FloodPrecip, o.FloodPrecip)
	set(&t.FrostMinTemp, o.FrostMinTemp)
	set(&t.DroughtRain, o.DroughtRain)
	return t
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above
// WeatherAPITimeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.StoreBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("store.backend must be memory or redis, got %q", cfg.StoreBackend)
	}
	if cfg.MaxForecastDays > client.MaxForecastDays {
		return fmt.Errorf("request.max_forecast_days must be at most %d, got %d", client.MaxForecastDays, cfg.MaxForecastDays)
	}
	if cfg.DefaultForecastDays > cfg.MaxForecastDays {
		return fmt.Errorf("request.default_forecast_days %d exceeds max_forecast_days %d", cfg.DefaultForecastDays, cfg.MaxForecastDays)
	}
	if cfg.LocationMinLength > cfg.LocationMaxLength {
		return fmt.Errorf("request.location_min_length %d exceeds location_max_length %d", cfg.LocationMinLength, cfg.LocationMaxLength)
	}
	switch cfg.RefreshMode {
	case models.ModeCurrent, models.ModeForecast:
	default:
		return fmt.Errorf("alerts.refresh_mode must be current or forecast, got %q", cfg.RefreshMode)
	}
	if cfg.RefreshDays > cfg.MaxForecastDays {
		return fmt.Errorf("alerts.refresh_days must be at most %d, got %d", cfg.MaxForecastDays, cfg.RefreshDays)
	}
	for _, u := range []string{cfg.CurrentWindUnit, cfg.ForecastWindUnit} {
		if u != models.WindUnitKPH && u != models.WindUnitMPS {
			return fmt.Errorf("alerts wind unit must be %q or %q, got %q", models.WindUnitKPH, models.WindUnitMPS, u)
		}
	}
	if err := cfg.CurrentThresholds.Validate(); err != nil {
		return fmt.Errorf("alerts.current: %w", err)
	}
	if err := cfg.ForecastThresholds.Validate(); err != nil {
		return fmt.Errorf("alerts.forecast: %w", err)
	}
	return nil
}
