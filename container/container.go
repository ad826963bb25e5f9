package container

import (
	"context"
	"fmt"
	"time"

	"microturk-backend/chain"
	"microturk-backend/mcp"
	mhttp "microturk-backend/middleware/marketplace"
	"microturk-backend/services"
	"microturk-backend/storage/auth"
	mstore "microturk-backend/storage/marketplace"
)

// Config carries the runtime settings the container needs to assemble the
// application graph.
type Config struct {
	StoreDriver       string // "memory" or "postgres"
	PostgresDSN       string
	GatewayDriver     string // "mock" or "node"
	ChainNodeURL      string
	PlatformWallet    string
	TaskPriceLamports int64
	TotalSubmissions  int64
	ChallengeTTL      time.Duration
	SessionTTL        time.Duration
	ConfirmDeadline   time.Duration
	SignPrefix        string
}

// Container holds all application dependencies
type Container struct {
	Store         mstore.Store
	Gateway       chain.Gateway
	Sessions      auth.SessionStorage
	PayoutService *services.PayoutService
	QRCodeService *services.QRCodeService
	Server        *mhttp.Server
	MCPServer     *mcp.MCPServer
}

// NewContainer creates a new dependency container
func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gateway := newGateway(cfg)

	sessions, err := newSessions(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	verifier := auth.NewEd25519Verifier()
	workerChallenges := auth.NewChallengeStore(cfg.ChallengeTTL, cfg.SignPrefix, verifier)
	requesterChallenges := auth.NewChallengeStore(cfg.ChallengeTTL, cfg.SignPrefix, verifier)

	payoutService := services.NewPayoutService(store, gateway, cfg.PlatformWallet, cfg.ConfirmDeadline)
	qrService := services.NewQRCodeService()

	server := mhttp.NewServer(mhttp.Config{
		Store:               store,
		Payouts:             payoutService,
		Gateway:             gateway,
		QR:                  qrService,
		Sessions:            sessions,
		SessionValidator:    sessions,
		WorkerChallenges:    workerChallenges,
		RequesterChallenges: requesterChallenges,
		PlatformWallet:      cfg.PlatformWallet,
		TaskPriceLamports:   cfg.TaskPriceLamports,
	})

	mcpServer := mcp.NewMCPServer(store, payoutService)

	return &Container{
		Store:         store,
		Gateway:       gateway,
		Sessions:      sessions,
		PayoutService: payoutService,
		QRCodeService: qrService,
		Server:        server,
		MCPServer:     mcpServer,
	}, nil
}

func newStore(ctx context.Context, cfg Config) (mstore.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return mstore.NewPGStore(ctx, cfg.PostgresDSN, cfg.TotalSubmissions)
	case "memory", "":
		return mstore.NewMemoryStore(cfg.TotalSubmissions), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
}

func newGateway(cfg Config) chain.Gateway {
	if cfg.GatewayDriver == "node" {
		return chain.NewNodeClient(cfg.ChainNodeURL)
	}
	return chain.NewMockGateway()
}

func newSessions(ctx context.Context, cfg Config) (auth.SessionStorage, error) {
	if cfg.StoreDriver == "postgres" {
		return auth.NewPGSessionStore(ctx, cfg.PostgresDSN, cfg.SessionTTL)
	}
	return auth.NewSessionStore(cfg.SessionTTL), nil
}

// Close releases the container's storage resources.
func (c *Container) Close() {
	if c.Sessions != nil {
		c.Sessions.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
}
