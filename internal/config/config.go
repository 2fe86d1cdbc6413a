package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// HTTP Configuration
	Host            string
	Port            int
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// Model Configuration
	ModelName string
	ModelPath string
	CacheSize int

	// Logging Configuration
	LogLevel  string
	LogFormat string
	LogFile   string

	// Database Configuration
	DBPath string

	// NATS Configuration
	NatsURL               string
	Stream                string
	Subject               string
	Durable               string
	MaxMsgs               int
	MaxAge                time.Duration
	Concurrency           int
	MonitoringTopic       string
	BackpressureThreshold int

	// Tracing Configuration
	OTelEnabled    bool
	OTelEndpoint   string
	OTelSampleRate float64
	Environment    string
}

var defaults = map[string]interface{}{
	"HOST":                   "0.0.0.0",
	"PORT":                   "8000",
	"SHUTDOWN_TIMEOUT":       "10s",
	"MODEL_NAME":             "iris",
	"MODEL_PATH":             "models/model.pkl",
	"PREDICTION_CACHE_SIZE":  256,
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "json",
	"LOG_FILE":               "",
	"DB_PATH":                "",
	"NATS_URL":               "",
	"STREAM_NAME":            "PREDICT",
	"SUBJECT":                "prediction.request.iris",
	"QUEUE_DURABLE":          "predict-wq",
	"QUEUE_MAX_MSGS":         2000,
	"QUEUE_MAX_AGE":          "30s",
	"WORKER_CONCURRENCY":     2,
	"MONITORING_TOPIC":       "monitoring.backpressure",
	"BACKPRESSURE_THRESHOLD": 10,
	"OTEL_ENABLED":           false,
	"OTEL_ENDPOINT":          "localhost:4317",
	"OTEL_SAMPLE_RATE":       0.1,
	"ENVIRONMENT":            "development",
}

// Load reads configuration from defaults, an optional dotenv file and the
// process environment, in increasing order of precedence.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("Could not load env file", "file", envFile, "error", err)
		} else {
			slog.Info("Environment loaded", "file", envFile)
		}
	}

	port, err := strconv.Atoi(strings.TrimSpace(v.GetString("PORT")))
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q: must be an integer between 1 and 65535", v.GetString("PORT"))
	}

	cfg := &Config{
		Host:                  v.GetString("HOST"),
		Port:                  port,
		ShutdownTimeout:       getDuration(v, "SHUTDOWN_TIMEOUT"),
		ModelName:             v.GetString("MODEL_NAME"),
		ModelPath:             v.GetString("MODEL_PATH"),
		CacheSize:             v.GetInt("PREDICTION_CACHE_SIZE"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
		LogFile:               v.GetString("LOG_FILE"),
		DBPath:                v.GetString("DB_PATH"),
		NatsURL:               v.GetString("NATS_URL"),
		Stream:                v.GetString("STREAM_NAME"),
		Subject:               v.GetString("SUBJECT"),
		Durable:               v.GetString("QUEUE_DURABLE"),
		MaxMsgs:               v.GetInt("QUEUE_MAX_MSGS"),
		MaxAge:                getDuration(v, "QUEUE_MAX_AGE"),
		Concurrency:           v.GetInt("WORKER_CONCURRENCY"),
		MonitoringTopic:       v.GetString("MONITORING_TOPIC"),
		BackpressureThreshold: v.GetInt("BACKPRESSURE_THRESHOLD"),
		OTelEnabled:           v.GetBool("OTEL_ENABLED"),
		OTelEndpoint:          v.GetString("OTEL_ENDPOINT"),
		OTelSampleRate:        v.GetFloat64("OTEL_SAMPLE_RATE"),
		Environment:           v.GetString("ENVIRONMENT"),
	}
	cfg.HTTPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.CacheSize < 0 {
		cfg.CacheSize = 0
	}
	return cfg, nil
}

// NATSEnabled reports whether the message transport should start.
func (c *Config) NATSEnabled() bool { return c.NatsURL != "" }

// RequestLogEnabled reports whether predictions are recorded to sqlite.
func (c *Config) RequestLogEnabled() bool { return c.DBPath != "" }

func getDuration(v *viper.Viper, key string) time.Duration {
	if d, err := time.ParseDuration(v.GetString(key)); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(defaults[key].(string))
	return d
}
