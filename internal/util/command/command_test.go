package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/vault-relayer/internal/api"
	"github/chapool/vault-relayer/internal/test"
	"github/chapool/vault-relayer/internal/util/command"
)

func TestWithServer(t *testing.T) {
	ctx := t.Context()

	var testError = errors.New("test error")

	cfg := test.DefaultTestServerConfig()
	cfg.Logger.PrettyPrintConsole = false

	resultErr := command.WithServer(ctx, cfg, func(_ context.Context, s *api.Server) error {
		require.NotNil(t, s.Executor)
		require.True(t, s.Ready())

		return testError
	})

	assert.Equal(t, testError, resultErr)
}

func TestNewSubcommandGroup(t *testing.T) {
	group := command.NewSubcommandGroup("group")
	require.NotNil(t, group.Run)
	assert.Equal(t, "group", group.Use)
}
