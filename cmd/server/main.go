package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/matthewbaird/fioriexport/internal/action"
	"github.com/matthewbaird/fioriexport/internal/config"
	"github.com/matthewbaird/fioriexport/internal/logging"
	"github.com/matthewbaird/fioriexport/internal/model"
	"github.com/matthewbaird/fioriexport/internal/server"
	"github.com/matthewbaird/fioriexport/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := os.Getenv("FIORIEXPORT_CONFIG")
	if path == "" {
		path = "fioriexport.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, closers, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		log.Fatalf("setting up logging: %v", err)
	}
	for _, c := range closers {
		defer c.Close()
	}

	s, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(ctx); err != nil {
		log.Fatalf("running schema migration: %v", err)
	}
	logger.Info("database migrated successfully")

	catalog, err := model.Load(cfg.Model.Dir)
	if err != nil {
		log.Fatalf("loading model from %s: %v", cfg.Model.Dir, err)
	}

	if err := server.Run(ctx, server.Config{
		Port:     cfg.Server.Port,
		BaseDir:  cfg.Export.BaseDir,
		Apps:     s,
		Exporter: action.New(cfg, catalog, s, logger),
		Logger:   logger,
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
