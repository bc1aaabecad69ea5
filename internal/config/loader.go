package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"chatd/internal/common/fsutil"
)

// Config holds runtime parameters for the service.
type Config struct {
	Host string `json:"host" yaml:"host" toml:"host"`
	Port int    `json:"port" yaml:"port" toml:"port"`

	// Engine selects the backend: "llama" (in-process) or "llama-server".
	Engine     string `json:"engine" yaml:"engine" toml:"engine"`
	ModelPath  string `json:"model_path" yaml:"model_path" toml:"model_path"`
	Vocabulary string `json:"vocabulary" yaml:"vocabulary" toml:"vocabulary"`
	// LlamaServerURL attaches to a running llama.cpp server instead of
	// spawning LlamaBin.
	LlamaServerURL string   `json:"llama_server_url" yaml:"llama_server_url" toml:"llama_server_url"`
	LlamaBin       string   `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamaArgs      []string `json:"llama_args" yaml:"llama_args" toml:"llama_args"`

	ContextSize   int      `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	Threads       int      `json:"threads" yaml:"threads" toml:"threads"`
	MaxTokens     int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature   float64  `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP          float64  `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK          int      `json:"top_k" yaml:"top_k" toml:"top_k"`
	Seed          int      `json:"seed" yaml:"seed" toml:"seed"`
	RepeatPenalty float64  `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	Stop          []string `json:"stop" yaml:"stop" toml:"stop"`

	InboundCapacity         int `json:"inbound_capacity" yaml:"inbound_capacity" toml:"inbound_capacity"`
	OutboundCapacity        int `json:"outbound_capacity" yaml:"outbound_capacity" toml:"outbound_capacity"`
	AdmissionTimeoutSeconds int `json:"admission_timeout_seconds" yaml:"admission_timeout_seconds" toml:"admission_timeout_seconds"`
	ChatTimeoutSeconds      int `json:"chat_timeout_seconds" yaml:"chat_timeout_seconds" toml:"chat_timeout_seconds"`
	ReadyTimeoutSeconds     int `json:"ready_timeout_seconds" yaml:"ready_timeout_seconds" toml:"ready_timeout_seconds"`
	ShutdownTimeoutSeconds  int `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`
	RecentTTLSeconds        int `json:"recent_ttl_seconds" yaml:"recent_ttl_seconds" toml:"recent_ttl_seconds"`

	MaxBodyBytes int64   `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	RateLimitRPS float64 `json:"rate_limit_rps" yaml:"rate_limit_rps" toml:"rate_limit_rps"`
	RateBurst    int     `json:"rate_limit_burst" yaml:"rate_limit_burst" toml:"rate_limit_burst"`
	StaticDir    string  `json:"static_dir" yaml:"static_dir" toml:"static_dir"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:                   "127.0.0.1",
		Port:                   8080,
		Engine:                 "llama",
		Vocabulary:             "model",
		ContextSize:            2048,
		Threads:                4,
		MaxTokens:              256,
		Temperature:            0.8,
		TopP:                   0.95,
		TopK:                   40,
		RepeatPenalty:          1.1,
		InboundCapacity:        3,
		OutboundCapacity:       3,
		ReadyTimeoutSeconds:    30,
		ShutdownTimeoutSeconds: 5,
		RecentTTLSeconds:       600,
		MaxBodyBytes:           1 << 20,
		RateBurst:              1,
		CORSMethods:            []string{"GET", "POST", "OPTIONS"},
		CORSHeaders:            []string{"Content-Type"},
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

// Load reads a configuration file based on its extension, on top of
// Default(). Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CHATD_* variables. getenv is usually
// os.Getenv. Malformed numbers are reported rather than ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := getenv(key); v != "" {
			*dst = SplitCSV(v)
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("CHATD_HOST", &c.Host)
	num("CHATD_PORT", &c.Port)
	str("CHATD_ENGINE", &c.Engine)
	str("CHATD_MODEL", &c.ModelPath)
	str("CHATD_VOCABULARY", &c.Vocabulary)
	str("CHATD_LLAMA_URL", &c.LlamaServerURL)
	str("CHATD_LLAMA_BIN", &c.LlamaBin)
	num("CHATD_CTX_SIZE", &c.ContextSize)
	num("CHATD_THREADS", &c.Threads)
	num("CHATD_MAX_TOKENS", &c.MaxTokens)
	float("CHATD_TEMPERATURE", &c.Temperature)
	num("CHATD_INBOUND_CAPACITY", &c.InboundCapacity)
	num("CHATD_OUTBOUND_CAPACITY", &c.OutboundCapacity)
	num("CHATD_ADMISSION_TIMEOUT_SECONDS", &c.AdmissionTimeoutSeconds)
	num("CHATD_CHAT_TIMEOUT_SECONDS", &c.ChatTimeoutSeconds)
	float("CHATD_RATE_LIMIT_RPS", &c.RateLimitRPS)
	num("CHATD_RATE_LIMIT_BURST", &c.RateBurst)
	str("CHATD_STATIC_DIR", &c.StaticDir)
	list("CHATD_CORS_ORIGINS", &c.CORSOrigins)
	str("CHATD_LOG_LEVEL", &c.LogLevel)
	str("CHATD_LOG_FORMAT", &c.LogFormat)
	if v := strings.ToLower(getenv("CHATD_CORS_ENABLED")); v != "" {
		c.CORSEnabled = v == "1" || v == "true" || v == "yes"
	}
	return errors.Join(errs...)
}

// ExpandPaths resolves "~" in the model, binary and static paths.
func (c *Config) ExpandPaths() error {
	return fsutil.ExpandAll(&c.ModelPath, &c.LlamaBin, &c.StaticDir)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Engine {
	case "llama", "llama-server":
	default:
		errs = append(errs, fmt.Errorf("unknown engine %q", c.Engine))
	}
	if c.ModelPath == "" && !(c.Engine == "llama-server" && c.LlamaServerURL != "") {
		errs = append(errs, errors.New("model path is required"))
	}
	if c.InboundCapacity < 1 || c.OutboundCapacity < 1 {
		errs = append(errs, errors.New("queue capacities must be at least 1"))
	}
	if c.AdmissionTimeoutSeconds < 0 || c.ChatTimeoutSeconds < 0 || c.ReadyTimeoutSeconds < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("rate_limit_rps must not be negative"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// SplitCSV splits a comma-separated list, dropping blanks.
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
