package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jadidihosein68/osaconnect/internal/app"
	"github.com/jadidihosein68/osaconnect/internal/config"
	"github.com/jadidihosein68/osaconnect/internal/queue"
	"github.com/jadidihosein68/osaconnect/internal/scheduler"
)

func main() {
	log.Println("Starting OsaConnect worker...")

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer a.Close()

	runner := queue.NewRunner(a.Broker, cfg.Queue.Concurrency)
	a.Dispatcher.Register(runner)
	a.EmailJobs.Register(runner)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Queue runner stopped: %v", err)
		}
	}()
	log.Printf("Queue runner started (backend=%s, concurrency=%d)", cfg.Queue.Backend, cfg.Queue.Concurrency)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(scheduler.Config{
			Spec:      cfg.Scheduler.Spec,
			Timezone:  cfg.Scheduler.Timezone,
			BatchSize: 500,
		}, a.Messages, a.Locks)
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		log.Printf("Scheduled message sweep running (%s)", cfg.Scheduler.Spec)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	if sched != nil {
		sched.Stop()
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(30 * time.Second):
		log.Println("Timed out waiting for in-flight tasks")
	}
	log.Println("Worker stopped")
}
