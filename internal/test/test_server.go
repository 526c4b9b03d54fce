package test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/api/router"
	"github/chapool/vault-relayer/internal/config"
)

// Fixed identities for the test server's signing domain.
const (
	TestChainID        int64 = 31337
	TestRelayerAddress       = "0x00000000000000000000000000000000000000aa"
	TestVaultAddress         = "0x00000000000000000000000000000000000000bb"
)

// TestClockEpoch is the mock clock's starting time.
var TestClockEpoch = time.Unix(1_000_000, 0)

// DefaultTestServerConfig returns the service config used by tests: no audit
// database, a fixed signing domain and a silenced request logger.
func DefaultTestServerConfig() config.Server {
	cfg := config.DefaultServiceConfigFromEnv()

	cfg.Database.Enabled = false
	cfg.Echo.ListenAddress = ":0"
	cfg.Echo.EnableLoggerMiddleware = false
	cfg.Relayer.ChainID = TestChainID
	cfg.Relayer.Address = TestRelayerAddress
	cfg.Relayer.VaultAddress = TestVaultAddress
	// tests seed their own ledger fixtures
	cfg.Relayer.SeedDemoLedger = false

	return cfg
}

// WithTestServer runs the closure against a fully initialized server with a
// mock clock pinned to TestClockEpoch.
func WithTestServer(t *testing.T, closure func(s *api.Server)) {
	t.Helper()

	WithTestServerConfig(t, DefaultTestServerConfig(), closure)
}

// WithTestServerConfig is WithTestServer with a caller-supplied config.
func WithTestServerConfig(t *testing.T, cfg config.Server, closure func(s *api.Server)) {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(TestClockEpoch)

	s, err := api.InitNewServerWithClock(cfg, mock)
	if err != nil {
		t.Fatalf("failed to initialize server: %v", err)
	}

	router.Init(s)

	defer func() {
		if errs := s.Shutdown(context.Background()); len(errs) > 0 {
			t.Logf("errors while shutting down server: %v", errs)
		}
	}()

	closure(s)
}
