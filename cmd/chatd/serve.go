package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chatd/internal/bridge"
	"chatd/internal/config"
	"chatd/internal/engine"
	"chatd/internal/httpapi"
)

func newLogger(cfg config.Config, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "chatd").Logger(), nil
}

func engineOptions(cfg config.Config, log zerolog.Logger) engine.Options {
	return engine.Options{
		Backend:       cfg.Engine,
		ModelPath:     cfg.ModelPath,
		Vocabulary:    cfg.Vocabulary,
		ContextSize:   cfg.ContextSize,
		Threads:       cfg.Threads,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   float32(cfg.Temperature),
		TopP:          float32(cfg.TopP),
		TopK:          cfg.TopK,
		Seed:          cfg.Seed,
		RepeatPenalty: float32(cfg.RepeatPenalty),
		Stop:          cfg.Stop,
		ServerURL:     cfg.LlamaServerURL,
		ServerBin:     cfg.LlamaBin,
		ServerArgs:    cfg.LlamaArgs,
		ReadyTimeout:  seconds(cfg.ReadyTimeoutSeconds),
		Logger:        log.With().Str("component", "engine").Logger(),
	}
}

// configureHTTP pushes config into the httpapi package settings.
func configureHTTP(cfg config.Config, log zerolog.Logger) {
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetChatTimeoutSeconds(int64(cfg.ChatTimeoutSeconds))
	httpapi.SetRateLimit(cfg.RateLimitRPS, cfg.RateBurst)
	httpapi.SetStaticDir(cfg.StaticDir)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, cfg.CORSMethods, cfg.CORSHeaders)
}

// serve loads the engine, then runs the worker and the HTTP server until ctx
// is canceled or one of them fails. A model that fails to load is fatal.
func serve(ctx context.Context, cfg config.Config, logOut io.Writer) error {
	log, err := newLogger(cfg, logOut)
	if err != nil {
		return err
	}

	log.Info().Str("engine", cfg.Engine).Str("model", cfg.ModelPath).Msg("loading model")
	eng, err := engine.Load(ctx, engineOptions(cfg, log))
	if err != nil {
		log.Error().Err(err).Msg("model load failed")
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn().Err(err).Msg("engine close")
		}
	}()

	blog := log.With().Str("component", "bridge").Logger()
	svc, err := bridge.New(bridge.Config{
		Engine:           eng,
		EngineName:       cfg.Engine,
		InboundCapacity:  cfg.InboundCapacity,
		OutboundCapacity: cfg.OutboundCapacity,
		AdmissionTimeout: seconds(cfg.AdmissionTimeoutSeconds),
		RecentTTL:        seconds(cfg.RecentTTLSeconds),
		Logger:           blog,
		Publisher:        bridge.NewLogPublisher(blog),
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	configureHTTP(cfg, log)
	httpapi.SetBaseContext(gctx)
	srv := &http.Server{
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		if err := svc.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("bridge worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("chatd listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		svc.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), seconds(cfg.ShutdownTimeoutSeconds))
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("chatd stopped")
	return err
}
