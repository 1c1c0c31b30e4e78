package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/rtcpeer/internal/adapters/http"
	"github.com/dkeye/rtcpeer/internal/adapters/rtc"
	"github.com/dkeye/rtcpeer/internal/app"
	"github.com/dkeye/rtcpeer/internal/audio"
	"github.com/dkeye/rtcpeer/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	driver := rtc.NewDriver(
		rtc.WithLogger(log.With().Str("module", "rtc").Logger()),
		rtc.WithInboundCapacity(cfg.Audio.PlaybackCapacity),
	)

	var manager *app.Manager
	graph := audio.NewGraph(cfg.Audio.SampleRate, cfg.Audio.BlockSize, func() { manager.Render() })
	manager = app.NewManager(app.NewRegistry(), app.Options{
		Driver:           driver,
		Media:            driver,
		Host:             graph,
		Peer:             cfg.PeerConfiguration(),
		EventQueueSize:   cfg.EventQueueSize,
		RecordCapacity:   cfg.Audio.RecordCapacity,
		PlaybackCapacity: cfg.Audio.PlaybackCapacity,
	})
	go graph.Run(ctx)

	r := router.SetupRouter(ctx, cfg, manager)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).
			Int("sample_rate", cfg.Audio.SampleRate).
			Int("block_size", cfg.Audio.BlockSize).
			Msg("rtcpeer server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
