package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"microturk-backend/container"
	"microturk-backend/metric"
	"microturk-backend/middleware"
)

type config struct {
	Port              string
	StoreDriver       string
	PGDSN             string
	GatewayDriver     string
	ChainNodeURL      string
	PlatformWallet    string
	TaskPriceLamports int64
	TotalSubmissions  int64
	ChallengeTTL      time.Duration
	SessionTTL        time.Duration
	ConfirmDeadline   time.Duration
	ReconcileInterval time.Duration
	SignPrefix        string
}

func loadConfig() config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	storeDriver := envDefault("MTURK_STORE_DRIVER", "memory")

	taskPrice := int64(100_000_000)
	if raw := os.Getenv("MTURK_TASK_PRICE_LAMPORTS"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			taskPrice = v
		}
	}

	totalSubmissions := int64(100)
	if raw := os.Getenv("MTURK_TOTAL_SUBMISSIONS"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			totalSubmissions = v
		}
	}

	challengeTTL := 5 * time.Minute
	if raw := os.Getenv("MTURK_CHALLENGE_TTL_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			challengeTTL = time.Duration(v) * time.Second
		}
	}

	sessionTTL := 24 * time.Hour
	if raw := os.Getenv("MTURK_SESSION_TTL_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			sessionTTL = time.Duration(v) * time.Second
		}
	}

	confirmDeadline := 10 * time.Minute
	if raw := os.Getenv("MTURK_CONFIRM_DEADLINE_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			confirmDeadline = time.Duration(v) * time.Second
		}
	}

	reconcileInterval := 30 * time.Second
	if raw := os.Getenv("MTURK_RECONCILE_INTERVAL_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			reconcileInterval = time.Duration(v) * time.Second
		}
	}

	return config{
		Port:              port,
		StoreDriver:       storeDriver,
		PGDSN:             os.Getenv("MTURK_PG_DSN"),
		GatewayDriver:     envDefault("MTURK_GATEWAY_DRIVER", "mock"), // mock | node
		ChainNodeURL:      os.Getenv("MTURK_CHAIN_NODE_URL"),
		PlatformWallet:    envDefault("MTURK_PLATFORM_WALLET", "platform-wallet-dev"),
		TaskPriceLamports: taskPrice,
		TotalSubmissions:  totalSubmissions,
		ChallengeTTL:      challengeTTL,
		SessionTTL:        sessionTTL,
		ConfirmDeadline:   confirmDeadline,
		ReconcileInterval: reconcileInterval,
		SignPrefix:        envDefault("MTURK_SIGN_PREFIX", "Sign in to MicroTurk"),
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfg := loadConfig()

	if cfg.StoreDriver == "postgres" && cfg.PGDSN == "" {
		log.Fatal("MTURK_PG_DSN required when MTURK_STORE_DRIVER=postgres")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := container.NewContainer(ctx, container.Config{
		StoreDriver:       cfg.StoreDriver,
		PostgresDSN:       cfg.PGDSN,
		GatewayDriver:     cfg.GatewayDriver,
		ChainNodeURL:      cfg.ChainNodeURL,
		PlatformWallet:    cfg.PlatformWallet,
		TaskPriceLamports: cfg.TaskPriceLamports,
		TotalSubmissions:  cfg.TotalSubmissions,
		ChallengeTTL:      cfg.ChallengeTTL,
		SessionTTL:        cfg.SessionTTL,
		ConfirmDeadline:   cfg.ConfirmDeadline,
		SignPrefix:        cfg.SignPrefix,
	})
	if err != nil {
		log.Fatalf("failed to init container: %v", err)
	}
	defer c.Close()

	// Background reconciliation moves submitted payouts to a terminal state.
	c.PayoutService.StartReconciler(ctx, cfg.ReconcileInterval)

	mux := http.NewServeMux()
	c.Server.RegisterRoutes(mux)
	mux.Handle("/metrics", metric.Handler())

	handler := middleware.Recovery(
		middleware.Logging(
			middleware.RateLimit(300, time.Minute)(
				middleware.SecurityHeaders(
					middleware.CORS(
						middleware.Timeout(30 * time.Second)(mux))))))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("microturk backend listening on :%s (store=%s gateway=%s)", cfg.Port, cfg.StoreDriver, cfg.GatewayDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
