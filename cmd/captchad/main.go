package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/predeactor/captchad/internal/config"
	"github.com/predeactor/captchad/internal/server"
)

const defaultConfigPath = "captchad.yaml"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}
	go s.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)
	sig := <-shutdown
	slog.Info("shutting down", "signal", sig.String())

	s.Shutdown()
}

func loadConfig() (server.Config, error) {
	var c server.Config

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		p = defaultConfigPath
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config %s: %w", p, err)
	}

	return c, nil
}
