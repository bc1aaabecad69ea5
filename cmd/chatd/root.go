package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatd/internal/config"
)

// serveFlags mirrors the config fields that can be set on the command line.
// Only flags the user actually set override file and environment values.
type serveFlags struct {
	configPath string
	v          config.Config
	stop       string
	cors       string
}

// runServe is replaced in tests.
var runServe = serve

func newRootCmd(getenv func(string) string) *cobra.Command {
	root := &cobra.Command{
		Use:           "chatd",
		Short:         "Stream a local language model to many HTTP clients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(getenv), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the chatd version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "chatd %s\n", version)
			return err
		},
	}
}

func newServeCmd(getenv func(string) string) *cobra.Command {
	f := &serveFlags{v: config.Default()}
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Load the model and serve /api/chat",
		Example: "  chatd serve --model ~/models/tinyllama.gguf --port 8080\n  chatd serve --engine llama-server --llama-url http://127.0.0.1:8081",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f, getenv)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}

	fs := cmd.Flags()
	d := &f.v
	fs.StringVar(&f.configPath, "config", "", "Config file (.yaml, .json or .toml)")
	fs.StringVar(&d.Host, "host", d.Host, "Listen host (CHATD_HOST)")
	fs.IntVarP(&d.Port, "port", "p", d.Port, "Listen port (CHATD_PORT)")
	fs.StringVarP(&d.ModelPath, "model", "m", d.ModelPath, "Path to the GGUF model file (CHATD_MODEL)")
	fs.StringVar(&d.Vocabulary, "vocabulary", d.Vocabulary, `Vocabulary source; only "model" is supported`)
	fs.StringVar(&d.Engine, "engine", d.Engine, "Engine backend: llama|llama-server (CHATD_ENGINE)")
	fs.StringVar(&d.LlamaServerURL, "llama-url", d.LlamaServerURL, "Attach to a running llama.cpp server (CHATD_LLAMA_URL)")
	fs.StringVar(&d.LlamaBin, "llama-bin", d.LlamaBin, "llama-server binary to spawn (CHATD_LLAMA_BIN)")
	fs.IntVar(&d.ContextSize, "ctx-size", d.ContextSize, "Model context size in tokens")
	fs.IntVar(&d.Threads, "threads", d.Threads, "Inference threads")
	fs.IntVar(&d.MaxTokens, "max-tokens", d.MaxTokens, "Maximum tokens generated per prompt")
	fs.Float64Var(&d.Temperature, "temperature", d.Temperature, "Sampling temperature")
	fs.StringVar(&f.stop, "stop", "", "Comma-separated stop sequences")
	fs.IntVar(&d.InboundCapacity, "inbound-capacity", d.InboundCapacity, "Prompt queue capacity")
	fs.IntVar(&d.OutboundCapacity, "outbound-capacity", d.OutboundCapacity, "Fragment queue capacity")
	fs.IntVar(&d.AdmissionTimeoutSeconds, "admission-timeout", d.AdmissionTimeoutSeconds, "Seconds to wait for queue room before 429 (0 waits)")
	fs.IntVar(&d.ChatTimeoutSeconds, "chat-timeout", d.ChatTimeoutSeconds, "Seconds a chat request may take (0 disables)")
	fs.Float64Var(&d.RateLimitRPS, "rate-limit", d.RateLimitRPS, "Chat requests per second (0 disables)")
	fs.IntVar(&d.RateBurst, "rate-burst", d.RateBurst, "Chat rate limit burst")
	fs.StringVar(&d.StaticDir, "static-dir", d.StaticDir, "Directory served at / (CHATD_STATIC_DIR)")
	fs.StringVar(&f.cors, "cors-origins", "", "Enable CORS for these comma-separated origins")
	fs.StringVar(&d.LogLevel, "log-level", d.LogLevel, "Log level: debug|info|warn|error (CHATD_LOG_LEVEL)")
	fs.StringVar(&d.LogFormat, "log-format", d.LogFormat, "Log format: json|console (CHATD_LOG_FORMAT)")
	return cmd
}

// resolveConfig layers defaults, the config file, CHATD_* variables and
// explicitly set flags, in that order.
func resolveConfig(cmd *cobra.Command, f *serveFlags, getenv func(string) string) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}

	fs := cmd.Flags()
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	v := f.v
	set("host", func() { cfg.Host = v.Host })
	set("port", func() { cfg.Port = v.Port })
	set("model", func() { cfg.ModelPath = v.ModelPath })
	set("vocabulary", func() { cfg.Vocabulary = v.Vocabulary })
	set("engine", func() { cfg.Engine = v.Engine })
	set("llama-url", func() { cfg.LlamaServerURL = v.LlamaServerURL })
	set("llama-bin", func() { cfg.LlamaBin = v.LlamaBin })
	set("ctx-size", func() { cfg.ContextSize = v.ContextSize })
	set("threads", func() { cfg.Threads = v.Threads })
	set("max-tokens", func() { cfg.MaxTokens = v.MaxTokens })
	set("temperature", func() { cfg.Temperature = v.Temperature })
	set("stop", func() { cfg.Stop = config.SplitCSV(f.stop) })
	set("inbound-capacity", func() { cfg.InboundCapacity = v.InboundCapacity })
	set("outbound-capacity", func() { cfg.OutboundCapacity = v.OutboundCapacity })
	set("admission-timeout", func() { cfg.AdmissionTimeoutSeconds = v.AdmissionTimeoutSeconds })
	set("chat-timeout", func() { cfg.ChatTimeoutSeconds = v.ChatTimeoutSeconds })
	set("rate-limit", func() { cfg.RateLimitRPS = v.RateLimitRPS })
	set("rate-burst", func() { cfg.RateBurst = v.RateBurst })
	set("static-dir", func() { cfg.StaticDir = v.StaticDir })
	set("cors-origins", func() {
		cfg.CORSOrigins = config.SplitCSV(f.cors)
		cfg.CORSEnabled = len(cfg.CORSOrigins) > 0
	})
	set("log-level", func() { cfg.LogLevel = v.LogLevel })
	set("log-format", func() { cfg.LogFormat = v.LogFormat })

	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
