package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/akuchlous/tokengard-mvp-sub000/cache"
	"github.com/akuchlous/tokengard-mvp-sub000/config"
	"github.com/akuchlous/tokengard-mvp-sub000/embedding"
	"github.com/akuchlous/tokengard-mvp-sub000/gateway"
	"github.com/akuchlous/tokengard-mvp-sub000/monitoring"
	"github.com/akuchlous/tokengard-mvp-sub000/policy"
	"github.com/akuchlous/tokengard-mvp-sub000/proxy"
	"github.com/akuchlous/tokengard-mvp-sub000/rate"
	"github.com/akuchlous/tokengard-mvp-sub000/state"
	"github.com/akuchlous/tokengard-mvp-sub000/tenancy"
	"github.com/akuchlous/tokengard-mvp-sub000/upstream"
	"github.com/akuchlous/tokengard-mvp-sub000/utils"
)

func main() {
	logger := utils.Must(zap.NewProduction())
	defer logger.Sync()
	sugar := logger.Sugar()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.LoadConfig(*configPath, sugar)
	if err != nil {
		sugar.Fatalw("Failed to load config", "error", err)
	}

	retention := time.Duration(cfg.RecordRetentionHours) * time.Hour

	var records state.Manager
	if cfg.ValkeyEndpoint != "" {
		valkeyClient, err := valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{cfg.ValkeyEndpoint},
		})
		if err != nil {
			sugar.Fatalw("Failed to create Valkey client", "error", err)
		}
		defer valkeyClient.Close()
		records = state.NewValkeyManager(valkeyClient, retention)
	} else {
		memory, stopCleanup := state.NewMemoryManager(cfg.RecordMaxBytes, retention)
		defer stopCleanup()
		records = memory
	}

	recorder := state.NewRecorder(records, cfg.RecorderWorkers, cfg.RecorderQueueSize, sugar)
	defer recorder.Close()

	resolver := policy.NewMemoryResolver()
	for _, key := range cfg.ApiKeys {
		keyState := key.State
		if keyState == "" {
			keyState = policy.KeyStateEnabled
		}
		tenantStatus := key.TenantStatus
		if tenantStatus == "" {
			tenantStatus = policy.TenantActive
		}
		resolver.Add(&policy.KeyRecord{
			Key:          key.Key,
			Name:         key.Name,
			State:        keyState,
			TenantID:     key.TenantId,
			TenantStatus: tenantStatus,
		})
	}

	settings := tenancy.NewSettings()
	metrics := monitoring.NewMetrics("tokengard")
	semanticCache := cache.NewSemanticCache(cfg.CacheMaxEntries, settings, sugar)
	keywords := policy.NewKeywordStore()
	engine := policy.NewEngine(resolver, keywords, sugar)
	upstreamClient := upstream.NewOpenAIClient(
		cfg.UpstreamBaseURL,
		cfg.UpstreamApiKey,
		time.Duration(cfg.UpstreamTimeoutSeconds)*time.Second,
		sugar)

	orchestrator := proxy.New(proxy.Deps{
		Policy:   engine,
		Cache:    semanticCache,
		Encoder:  embedding.NewEncoder(),
		Upstream: upstreamClient,
		Settings: settings,
		Recorder: recorder,
		Keys:     resolver,
		Metrics:  metrics,
		Logger:   sugar,
	})

	edge := gateway.New(gateway.Deps{
		Orchestrator:   orchestrator,
		Resolver:       resolver,
		Keywords:       keywords,
		Settings:       settings,
		Cache:          semanticCache,
		Records:        records,
		Limiter:        rate.NewLimiter(cfg.RateLimitPerMinute),
		Metrics:        metrics,
		Logger:         sugar,
		ProductionMode: cfg.ProductionMode,
		AdminToken:     cfg.AdminToken,
	})

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		Debug:          false,
	})

	address := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: corsMiddleware.Handler(edge.Handler()),
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownSignal
		sugar.Infow("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			sugar.Fatalw("Server forced to shutdown", "error", err)
		}
	}()

	sugar.Infow("Starting server", "address", address)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("Failed to start server", "error", err)
	}

	sugar.Infow("Server exited gracefully")
}
