package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpt/internal/clierr"
	"mcpt/internal/config"
	"mcpt/internal/retry"
	"mcpt/internal/secrets"
	"mcpt/internal/transport"
)

func TestToolCallError_Classification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode clierr.Code
	}{
		{"not found", errors.New("tool not found: read_file"), clierr.CodeToolNotFound},
		{"unknown tool", errors.New("unknown tool \"x\""), clierr.CodeToolNotFound},
		{"validation", errors.New("schema validation failed"), clierr.CodeToolExecutionFailed},
		{"missing required", errors.New("missing required parameter 'path'"), clierr.CodeToolExecutionFailed},
		{"permission", errors.New("permission denied"), clierr.CodeToolExecutionFailed},
		{"generic", errors.New("boom"), clierr.CodeToolExecutionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toolCallError("fs", "read_file", tt.err)
			assert.Equal(t, tt.wantCode, clierr.CodeOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCallTool_DisabledRefusedLocally(t *testing.T) {
	// No daemon handle and no direct connection are wired: reaching the
	// server would panic, so a success here proves the refusal is local.
	sess := &Session{
		srv: &config.ServerConfig{
			Name:          "fs",
			Command:       "mcp-fs",
			DisabledTools: []string{"delete_*"},
		},
		logger: zap.NewNop(),
	}

	_, err := sess.CallTool(context.Background(), "delete_file", map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeToolDisabled, clierr.CodeOf(err))
}

func TestOpen_UnknownServerListsAvailable(t *testing.T) {
	cfg := &config.Config{Servers: map[string]*config.ServerConfig{
		"alpha": {Name: "alpha", Command: "run"},
		"beta":  {Name: "beta", Command: "run"},
	}}
	factory := transport.NewFactory(secrets.NewStore(t.TempDir()), zap.NewNop(), false)
	opener := NewOpener(cfg, factory, nil, retry.Policy{}, zap.NewNop())

	_, err := opener.Open(context.Background(), "gamma")
	require.Error(t, err)

	var e *clierr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, clierr.CodeServerNotFound, e.Code)
	assert.Contains(t, e.Details, "alpha")
	assert.Contains(t, e.Details, "beta")
}

func TestClose_Idempotent(t *testing.T) {
	sess := &Session{
		srv:    &config.ServerConfig{Name: "fs", Command: "mcp-fs"},
		logger: zap.NewNop(),
	}
	assert.NoError(t, sess.Close())
	assert.NoError(t, sess.Close())
}
