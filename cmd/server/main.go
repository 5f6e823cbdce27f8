package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatbot-factory/backend/internal/config"
	"github.com/chatbot-factory/backend/internal/db"
	httpapi "github.com/chatbot-factory/backend/internal/http"
	"github.com/chatbot-factory/backend/internal/scheduler"
	"github.com/chatbot-factory/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "chatbot-backend").Logger()

	ctx, stop := context.WithCancel(context.Background())
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	consolidation := &service.ConsolidationService{
		Events:         store,
		Inbox:          store,
		Intents:        store,
		Logger:         logger,
		ListenAction:   cfg.ListenAction,
		FallbackIntent: cfg.FallbackIntent,
	}
	reconciliation := &service.ReconciliationService{
		Feedback: store,
		Matcher:  store,
		Logger:   logger,
	}

	runners := []*scheduler.Runner{
		{
			Name:     "consolidation",
			Interval: cfg.ConsolidateInterval,
			Logger:   logger,
			Job: func(ctx context.Context) error {
				_, err := consolidation.Run(ctx)
				return err
			},
		},
		{
			Name:     "reconciliation",
			Interval: cfg.ReconcileInterval,
			Logger:   logger,
			Job: func(ctx context.Context) error {
				_, err := reconciliation.Run(ctx)
				return err
			},
		},
	}

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *scheduler.Runner) {
			defer wg.Done()
			r.Start(ctx)
		}(r)
	}

	router := httpapi.Router(cfg, store, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stop()
	wg.Wait()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
