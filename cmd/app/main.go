package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/james2654817/dingtalk-notion-sync/internal/config"
	"github.com/james2654817/dingtalk-notion-sync/internal/dingtalk"
	"github.com/james2654817/dingtalk-notion-sync/internal/logging"
	"github.com/james2654817/dingtalk-notion-sync/internal/notion"
	"github.com/james2654817/dingtalk-notion-sync/internal/sync"
	"github.com/james2654817/dingtalk-notion-sync/internal/webhook"
	"github.com/james2654817/dingtalk-notion-sync/pkg/respond"
)

func main() {
	loader, err := config.NewLoader(config.Path())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := loader.Config()

	logger := logging.New(cfg.Logging)
	defer logger.Sync()

	todo := dingtalk.NewClient(cfg.Dingtalk.AppKey, cfg.Dingtalk.AppSecret, cfg.Dingtalk.UnionID, logger)
	records := notion.NewClient(cfg.Notion.Token, logger)

	engine := sync.NewEngine(todo, records,
		cfg.Notion.PersonalTodoDatabaseID,
		cfg.Notion.TeamTaskDatabaseID,
		logger)

	pollers := []*sync.Poller{
		sync.NewPoller("notion_personal", cfg.Polling.Interval(), engine.NotionCycle(cfg.Notion.PersonalTodoDatabaseID), logger),
		sync.NewPoller("notion_team", cfg.Polling.Interval(), engine.NotionCycle(cfg.Notion.TeamTaskDatabaseID), logger),
		sync.NewPoller("dingtalk", cfg.Polling.Interval(), engine.DingtalkCycle(), logger),
	}

	loader.OnChange(func(next *config.Config) {
		logger.Info("config reloaded", zap.Duration("poll_interval", next.Polling.Interval()))
		for _, p := range pollers {
			p.SetInterval(next.Polling.Interval())
		}
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	} else {
		defer stopWatch()
	}

	crypto, err := webhook.NewCrypto(cfg.Dingtalk.Webhook.AESKey, cfg.Dingtalk.Webhook.Token)
	if err != nil {
		logger.Fatal("webhook crypto setup failed", zap.Error(err))
	}
	hook := webhook.NewHandler(crypto, engine, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	hook.Register(r)

	srv := http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Dingtalk.Webhook.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, p := range pollers {
		p.Start(ctx)
	}

	go func() {
		logger.Info("webhook server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("shutting down...")
	for _, p := range pollers {
		p.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("shutdown error", zap.Error(err))
	}
	logger.Info("stopped")
}
