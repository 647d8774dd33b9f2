package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/equindex/internal/api"
	"github.com/wonny/equindex/internal/api/handlers"
	"github.com/wonny/equindex/internal/brain"
	"github.com/wonny/equindex/internal/s0_data"
	"github.com/wonny/equindex/internal/s3_index"
	"github.com/wonny/equindex/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health                    - Health check
  GET  /metrics                   - Prometheus metrics (METRICS_ENABLED)
  GET  /api/indices               - Index values (name, start_date, end_date)
  GET  /api/indices/names         - Stored index names
  POST /api/indices/generate      - Trigger a generation run
  GET  /api/indices/runs          - Recent runs
  GET  /api/indices/runs/{id}     - One run with per-grouping outcomes
  GET  /api/sectors               - Distinct sectors
  GET  /api/industries            - Distinct industries (sector)
  GET  /api/companies             - Companies (sector, industry, page, limit)
  GET  /api/search                - Company search (q, limit)
  GET  /api/stats                 - Reference and price statistics

Example:
  go run ./cmd/equindex api
  go run ./cmd/equindex api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== equindex API Server ===")

	// 1. Config, logger, database
	rt, err := setup(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Override port if flag is set
	if apiPort != "" {
		rt.cfg.Port = apiPort
	}

	log := rt.log
	log.WithFields(map[string]interface{}{
		"port":    rt.cfg.Port,
		"env":     rt.cfg.Env,
		"metrics": rt.metrics != nil,
	}).Info("Initializing API server")

	// 2. Redis (disabled → no-op cache and limiter)
	redisClient, err := redis.New(rt.cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	cache := redis.NewCache(redisClient, "equindex")
	limiter := redis.NewRateLimiter(redisClient, "equindex")

	// 3. Repositories and orchestrator
	stocks := s0_data.NewStockRepository(rt.db.Pool, rt.cfg.Index.BatchSize)
	prices := s0_data.NewPriceRepository(rt.db.Pool, rt.cfg.Index.BatchSize)
	indices := s3_index.NewIndexRepository(rt.db.Pool)
	runs := s3_index.NewRunRepository(rt.db.Pool)
	orchestrator := brain.NewFromPool(rt.db.Pool, rt.cfg.Index, rt.metrics, log)

	// 4. Handlers; triggered runs outlive their request but stop on shutdown
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()

	indexHandler := handlers.NewIndexHandler(runCtx, indices, runs, orchestrator, cache, limiter, rt.metrics, log)
	orchestrator.OnComplete(indexHandler.InvalidateNames)
	refHandler := handlers.NewReferenceHandler(stocks, prices, cache, log)

	// 5. Router and server
	router := api.NewRouter(indexHandler, refHandler, rt.db, rt.metrics, log)
	server := api.New(rt.cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", rt.cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	if rt.metrics != nil {
		fmt.Println("  GET  /metrics")
	}
	fmt.Println("  GET  /api/indices")
	fmt.Println("  GET  /api/indices/names")
	fmt.Println("  POST /api/indices/generate")
	fmt.Println("  GET  /api/indices/runs")
	fmt.Println("  GET  /api/sectors")
	fmt.Println("  GET  /api/companies")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Running generations finish their current groupings and record an aborted run
	stopRuns()
	indexHandler.Wait()

	log.Info("Server stopped")
	return nil
}
