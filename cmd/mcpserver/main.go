package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"microturk-backend/chain"
	"microturk-backend/mcp"
	"microturk-backend/services"
	mstore "microturk-backend/storage/marketplace"
)

type config struct {
	StoreDriver      string
	PGDSN            string
	GatewayDriver    string
	ChainNodeURL     string
	PlatformWallet   string
	TotalSubmissions int64
	ConfirmDeadline  time.Duration
}

func loadConfig() config {
	totalSubmissions := int64(100)
	if raw := os.Getenv("MTURK_TOTAL_SUBMISSIONS"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			totalSubmissions = v
		}
	}

	confirmDeadline := 10 * time.Minute
	if raw := os.Getenv("MTURK_CONFIRM_DEADLINE_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			confirmDeadline = time.Duration(v) * time.Second
		}
	}

	return config{
		StoreDriver:      envDefault("MTURK_STORE_DRIVER", "memory"),
		PGDSN:            os.Getenv("MTURK_PG_DSN"),
		GatewayDriver:    envDefault("MTURK_GATEWAY_DRIVER", "mock"), // mock | node
		ChainNodeURL:     os.Getenv("MTURK_CHAIN_NODE_URL"),
		PlatformWallet:   envDefault("MTURK_PLATFORM_WALLET", "platform-wallet-dev"),
		TotalSubmissions: totalSubmissions,
		ConfirmDeadline:  confirmDeadline,
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

	ctx := context.Background()
	var store mstore.Store
	var err error
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("MTURK_PG_DSN required when MTURK_STORE_DRIVER=postgres")
		}
		store, err = mstore.NewPGStore(ctx, cfg.PGDSN, cfg.TotalSubmissions)
	default:
		store = mstore.NewMemoryStore(cfg.TotalSubmissions)
	}
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()

	var gateway chain.Gateway
	if cfg.GatewayDriver == "node" {
		gateway = chain.NewNodeClient(cfg.ChainNodeURL)
	} else {
		gateway = chain.NewMockGateway()
	}

	payouts := services.NewPayoutService(store, gateway, cfg.PlatformWallet, cfg.ConfirmDeadline)

	mcpServer := mcp.NewMCPServer(store, payouts)

	log.Printf("MicroTurk MCP server starting (driver=%s)", cfg.StoreDriver)

	// Start the MCP server using stdio transport
	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
