package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github/chapool/vault-relayer/internal/config"
	"github/chapool/vault-relayer/internal/metrics"
	"github/chapool/vault-relayer/internal/relayer/audit"
	"github/chapool/vault-relayer/internal/relayer/authz"
	"github/chapool/vault-relayer/internal/relayer/batch"
	"github/chapool/vault-relayer/internal/relayer/permit"
	"github/chapool/vault-relayer/internal/relayer/typeddata"
	"github/chapool/vault-relayer/internal/relayer/vault"
	"github/chapool/vault-relayer/internal/util"

	// Import postgres driver for database/sql package
	_ "github.com/lib/pq"
)

// AuthzService interface for approval and replay-protection state
// Alias to authz.Service for API access
type AuthzService = authz.Service

// PermitService interface for token permit application
// Alias to permit.Service for API access
type PermitService = permit.Service

// AuditService interface for batch audit records
// Alias to audit.Service for API access
type AuditService = audit.Service

type Router struct {
	Routes       []*echo.Route
	Root         *echo.Group
	Management   *echo.Group
	APIV1Relayer *echo.Group
}

// Server is a central struct keeping all the dependencies. Components are
// initialized by InitNewServer in dependency order; the Echo and Router
// fields are populated by router.Init.
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config    config.Server
	DB        *sql.DB // nil when the audit database is disabled
	Clock     clock.Clock
	Metrics   *metrics.Service
	Verifier  *typeddata.Verifier
	Authz     AuthzService
	Permits   PermitService
	Registry  *permit.Registry
	Vault     vault.Vault
	Forwarder *vault.Forwarder
	Executor  *batch.Executor
	Audit     AuditService
}

func NewServer(config config.Server) *Server {
	s := &Server{
		Config: config,
	}

	return s
}

// InitNewServer returns a fully initialized Server instance, wiring the
// relaying components over the in-process ledger.
func InitNewServer(cfg config.Server) (*Server, error) {
	return InitNewServerWithClock(cfg, clock.New())
}

// InitNewServerWithClock is InitNewServer with an injectable clock, used by
// tests to control authorization deadlines.
func InitNewServerWithClock(cfg config.Server, clk clock.Clock) (*Server, error) {
	s := NewServer(cfg)
	s.Clock = clk
	s.Metrics = metrics.New()

	if cfg.Database.Enabled {
		db, err := sql.Open("postgres", cfg.Database.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

		s.DB = db
		s.Metrics.RegisterDBStats(db, cfg.Database.Database)
	}

	s.Audit = audit.NewService(s.DB)

	relayerAddr := common.HexToAddress(cfg.Relayer.Address)
	vaultAddr := common.HexToAddress(cfg.Relayer.VaultAddress)

	s.Verifier = typeddata.NewVerifier(cfg.Relayer.DomainName, cfg.Relayer.DomainVersion, big.NewInt(cfg.Relayer.ChainID), relayerAddr)
	s.Authz = authz.NewService(s.Verifier, clk)
	s.Registry = permit.NewRegistry()
	s.Permits = permit.NewService(s.Registry)

	memVault := vault.NewMemoryVault(vaultAddr, relayerAddr, s.Registry)
	memVault.GrantRelayer(relayerAddr, vault.Ops...)
	s.Vault = memVault

	if cfg.Relayer.SeedDemoLedger {
		seedDemoLedger(s, memVault)
	}

	s.Forwarder = vault.NewForwarder(s.Vault, s.Authz, relayerAddr)
	s.Executor = batch.NewExecutor(relayerAddr, s.Authz, s.Permits, s.Registry, s.Forwarder, s.Vault)
	s.Executor.SetObserver(s.Metrics)

	return s, nil
}

// Demo ledger identities, seeded when SERVER_RELAYER_SEED_DEMO_LEDGER is on.
// DemoAccountAddress is the first well-known anvil/hardhat dev account.
const (
	DemoAccountAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	DemoTokenAAddress  = "0x000000000000000000000000000000000000d001"
	DemoTokenBAddress  = "0x000000000000000000000000000000000000d002"
	DemoPoolID         = "demo-ab"
)

// seedDemoLedger registers two demo tokens and a 2:1 pool and funds the demo
// account with native value and token supply.
func seedDemoLedger(s *Server, v *vault.MemoryVault) {
	chainID := big.NewInt(s.Config.Relayer.ChainID)
	account := common.HexToAddress(DemoAccountAddress)

	tokenA := permit.NewMemoryToken("Demo Token A", chainID, common.HexToAddress(DemoTokenAAddress), s.Clock)
	tokenB := permit.NewMemoryToken("Demo Token B", chainID, common.HexToAddress(DemoTokenBAddress), s.Clock)
	s.Registry.Register(common.HexToAddress(DemoTokenAAddress), tokenA)
	s.Registry.Register(common.HexToAddress(DemoTokenBAddress), tokenB)

	v.CreatePool(DemoPoolID, 2, 1)

	// one million whole units of 18 decimals each
	supply := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000_000_000_000_000))
	tokenA.Mint(account, supply)
	tokenB.Mint(account, supply)
	v.FundNative(account, supply)
}

func (s *Server) Ready() bool {
	// DB is optional, everything else has to be initialized
	if err := util.IsStructInitialized(s, "DB"); err != nil {
		log.Debug().Err(err).Msg("Server is not fully initialized")
		return false
	}

	return true
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	if err := s.Echo.Start(s.Config.Echo.ListenAddress); err != nil {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if s.DB != nil {
		log.Debug().Msg("Closing database connection")

		if err := s.DB.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			log.Error().Err(err).Msg("Failed to close database connection")
			errs = append(errs, err)
		}
	}

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")

		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	return errs
}
