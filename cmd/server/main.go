package main

import (
	"context"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/blindorder/blindorder-backend/internal/config"
	"github.com/blindorder/blindorder-backend/internal/httpapi"
	"github.com/blindorder/blindorder-backend/internal/hub"
	"github.com/blindorder/blindorder-backend/internal/storage"
)

func main() {
	cfg := config.Load()

	var log *zap.Logger
	var err error
	if cfg.IsDevelopment() {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	store, err := storage.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	h := hub.NewHub(ctx, store, log)
	go h.Sweep(cfg.RoomIdleTTL, cfg.SweepInterval)

	handler := httpapi.SetupRoutes(h, store, log, cfg.AllowedOrigins)

	addr := ":" + cfg.Port
	log.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
