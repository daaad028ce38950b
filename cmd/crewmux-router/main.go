package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/crewmux/crewmux/core/cache"
	"github.com/crewmux/crewmux/core/configstore"
	"github.com/crewmux/crewmux/core/crew"
	"github.com/crewmux/crewmux/core/hub"
	"github.com/crewmux/crewmux/core/infra/buildinfo"
	"github.com/crewmux/crewmux/core/infra/bus"
	"github.com/crewmux/crewmux/core/infra/config"
	infraMetrics "github.com/crewmux/crewmux/core/infra/metrics"
)

func main() {
	log.Println("crewmux router starting...")
	buildinfo.Log("crewmux-router")

	cfg := config.Load()

	metrics := infraMetrics.NewProm("crewmux_router")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", infraMetrics.Handler())
		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		log.Printf("router metrics on %s/metrics", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	redisTier, err := cache.NewRedisTier(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to Redis for cache tier 2: %v", err)
	}
	defer redisTier.Close()

	layered := cache.New(cache.Options{
		MaxLocalEntries: cfg.LocalCacheEntries,
		Redis:           redisTier,
		Metrics:         metrics,
	})

	store, err := configstore.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to Redis for config store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DomainSeedDir != "" {
		if n, err := store.SeedFromDir(ctx, cfg.DomainSeedDir); err != nil {
			log.Printf("domain config seed failed: %v", err)
		} else if n > 0 {
			log.Printf("seeded %d domain config documents from %s", n, cfg.DomainSeedDir)
		}
	}

	channelTable, err := config.LoadChannelTable(cfg.ChannelTablePath)
	if err != nil {
		log.Fatalf("failed to load channel table: %v", err)
	}
	classifier, err := config.LoadClassifier(cfg.ClassifierPath)
	if err != nil {
		log.Fatalf("failed to load classifier config: %v", err)
	}

	natsBus, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		log.Printf("NATS unavailable, running without invalidation broadcast: %v", err)
		natsBus = nil
	} else {
		defer natsBus.Close()
	}

	senderID := "crewmux-router-" + uuid.NewString()

	tools := crew.NewToolRegistry()
	var runner crew.Runner
	if cfg.RemoteCrewsEnabled && natsBus != nil {
		runner = &crew.RemoteRunner{Bus: natsBus, SenderID: senderID}
		log.Println("remote crew execution enabled")
	} else {
		runner = &crew.LocalRunner{Tools: tools}
	}

	factory := crew.NewFactory(crew.FactoryOptions{
		Source:  store,
		Tools:   tools,
		Cache:   layered,
		Runner:  runner,
		Metrics: metrics,
	})

	router, err := hub.New(hub.Options{
		Resolver:       tenantResolver(layered, channelTable),
		Factory:        factory,
		Classifier:     classifier,
		Cache:          layered,
		Bus:            natsBus,
		SenderID:       senderID,
		HandlerTimeout: cfg.HandlerTimeout,
		Workers:        cfg.WorkerPoolSize,
		Metrics:        metrics,
	})
	if err != nil {
		log.Fatalf("failed to build routing hub: %v", err)
	}
	defer router.Close()

	if err := router.StartInvalidationListener(); err != nil {
		log.Printf("invalidation listener failed to start: %v", err)
	}

	srv := newHTTPServer(cfg, router)
	go func() {
		log.Printf("router API on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("router API error: %v", err)
		}
	}()

	log.Println("router running. waiting for signals...")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("router shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("router API shutdown: %v", err)
	}
	cancel()
}
