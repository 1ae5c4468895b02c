package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/api"
	"github.com/jadidihosein68/osaconnect/internal/app"
	"github.com/jadidihosein68/osaconnect/internal/config"
)

// checkPortAvailable fails fast when something else already listens on
// the target port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting OsaConnect API server...")

	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()

	server := api.NewServer(api.Services{
		Messages:     a.Messages,
		EmailJobs:    a.EmailJobs,
		Campaigns:    a.Campaigns,
		Reconciler:   a.Reconciler,
		Unsubscribe:  a.Unsubscribe,
		Inbound:      a.Inbound,
		Suppressions: a.Suppression,
		Health:       api.NewHealthChecker(a.DB, a.Redis),
	}, api.Options{AllowedOrigins: cfg.Server.AllowedOrigins, MediaDir: mediaDir(cfg)})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// mediaDir is the local media root to serve, or "" when files live in S3.
func mediaDir(cfg *config.Config) string {
	if cfg.Media.Bucket != "" {
		return ""
	}
	return cfg.Media.LocalPath
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}
