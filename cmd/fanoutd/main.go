package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/nchandak/fanout/internal/config"
	"github.com/nchandak/fanout/internal/metrics"
	"github.com/nchandak/fanout/internal/plugin"
	"github.com/nchandak/fanout/internal/server"
	"github.com/nchandak/fanout/internal/service"
	"github.com/nchandak/fanout/internal/store"
	"github.com/nchandak/fanout/internal/worker"
)

func main() {
	fmt.Println("fanoutd - plugin invocation worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath, err = defaultDBPath()
		if err != nil {
			log.Fatalf("Failed to resolve database path: %v", err)
		}
	}

	st, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	manager := plugin.NewManager(cfg.PluginDir)
	if err := manager.Discover(); err != nil {
		log.Fatalf("Failed to discover plugins: %v", err)
	}
	log.Printf("Discovered %d plugins in %s", len(manager.List()), manager.Dir())

	m := metrics.New()

	svc := service.NewPluginService(manager, plugin.NewExecutor(cfg.PluginTimeout), service.Options{
		MaxRetries: cfg.ExecRetries,
	})

	events := server.NewEventsHandler()

	consumer, err := worker.NewConsumer(worker.ConsumerConfig{
		Store:        st,
		Worker:       worker.New(svc, m),
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
		RetryDelay:   cfg.RetryDelay,
		OnResult:     events.Publish,
	})
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}
	consumer.Start()
	defer consumer.Stop()

	srv := server.New(server.Config{
		Store:   st,
		Plugins: manager,
		Metrics: m,
		Events:  events,
	})

	fmt.Printf("Starting server on %s\n", cfg.Addr)
	if err := srv.ListenAndServe(cfg.Addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// defaultDBPath places the queue database under ~/.fanoutd.
func defaultDBPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dbDir := filepath.Join(homeDir, ".fanoutd")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dbDir, "fanoutd.db"), nil
}
