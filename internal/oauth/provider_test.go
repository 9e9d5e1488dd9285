package oauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpt/internal/config"
	"mcpt/internal/secrets"
)

func newTestProvider(t *testing.T, cfg *config.OAuthConfig) (*Provider, *secrets.Store) {
	t.Helper()
	store := secrets.NewStore(t.TempDir())
	p := NewProvider("srv", "https://example.com/mcp", cfg, store, zap.NewNop())
	t.Cleanup(p.Cleanup)
	return p, store
}

func TestRedirectURLForPort(t *testing.T) {
	assert.Equal(t, "http://localhost/callback", redirectURLForPort(80))
	assert.Equal(t, "http://localhost:8090/callback", redirectURLForPort(8090))
}

func TestRedirectURL_ClientCredentialsHasNone(t *testing.T) {
	p, _ := newTestProvider(t, &config.OAuthConfig{
		GrantType:    config.GrantClientCredentials,
		ClientID:     "cid",
		ClientSecret: "cs",
	})
	assert.Empty(t, p.RedirectURL())
}

func TestProviderStart_BindsEffectivePort(t *testing.T) {
	p, _ := newTestProvider(t, &config.OAuthConfig{CallbackPorts: []int{0}})
	require.NoError(t, p.Start())
	assert.NotZero(t, p.EffectivePort())

	// Re-entry reuses the already-bound listener.
	port := p.EffectivePort()
	require.NoError(t, p.Start())
	assert.Equal(t, port, p.EffectivePort())
}

func TestResolveClientInfo_StaticWins(t *testing.T) {
	p, store := newTestProvider(t, &config.OAuthConfig{ClientID: "static-id", ClientSecret: "sec"})

	// A persisted registration must not shadow static config.
	require.NoError(t, store.SaveClientInfo("srv", &secrets.ClientInfo{ClientID: "registered"}))

	info, err := p.ResolveClientInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static-id", info.ClientID)
	assert.Equal(t, "sec", info.ClientSecret)
}

func TestResolveClientInfo_PersistedMatchingRedirect(t *testing.T) {
	p, store := newTestProvider(t, &config.OAuthConfig{CallbackPorts: []int{0}})
	require.NoError(t, p.Start())

	require.NoError(t, store.SaveClientInfo("srv", &secrets.ClientInfo{
		ClientID:     "registered",
		RedirectURIs: []string{p.RedirectURL()},
	}))

	info, err := p.ResolveClientInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "registered", info.ClientID)
}

func TestResolveClientInfo_RedirectMismatchInvalidates(t *testing.T) {
	p, store := newTestProvider(t, &config.OAuthConfig{CallbackPorts: []int{0}})
	require.NoError(t, p.Start())

	require.NoError(t, store.SaveClientInfo("srv", &secrets.ClientInfo{
		ClientID:     "registered",
		RedirectURIs: []string{"http://localhost:1/callback"},
	}))

	// Discovery against example.com fails, so resolution errors out, but
	// the stale registration must already be gone.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ResolveClientInfo(ctx)
	require.Error(t, err)
	assert.Nil(t, store.GetClientInfo("srv"))
}

func TestCodeVerifier_AbsenceIsFatal(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	_, err := p.CodeVerifier()
	assert.Error(t, err)
}

func TestCodeVerifier_RoundTrip(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	require.NoError(t, p.SaveCodeVerifier("the-verifier"))
	v, err := p.CodeVerifier()
	require.NoError(t, err)
	assert.Equal(t, "the-verifier", v)
}

func TestClientCredentialsParams(t *testing.T) {
	p, _ := newTestProvider(t, &config.OAuthConfig{
		GrantType:    config.GrantClientCredentials,
		ClientID:     "cid",
		ClientSecret: "cs",
		Scope:        "mcp.read",
	})

	params := p.ClientCredentialsParams("")
	assert.Equal(t, "client_credentials", params.Get("grant_type"))
	assert.Equal(t, "mcp.read", params.Get("scope"))

	override := p.ClientCredentialsParams("mcp.write")
	assert.Equal(t, "mcp.write", override.Get("scope"))
}

func TestClientCredentialsParams_NoScope(t *testing.T) {
	p, _ := newTestProvider(t, &config.OAuthConfig{
		GrantType:    config.GrantClientCredentials,
		ClientID:     "cid",
		ClientSecret: "cs",
	})
	params := p.ClientCredentialsParams("")
	assert.False(t, params.Has("scope"))
}

func TestRewriteRedirectURI(t *testing.T) {
	in := "https://auth.example.com/authorize?client_id=c&redirect_uri=http%3A%2F%2Flocalhost%3A9999%2Fcallback&state=s"
	out, err := RewriteRedirectURI(in, "http://localhost:8090/callback")
	require.NoError(t, err)
	assert.Contains(t, out, "redirect_uri=http%3A%2F%2Flocalhost%3A8090%2Fcallback")
	assert.Contains(t, out, "client_id=c")
	assert.Contains(t, out, "state=s")
}

func TestWellKnown_PathPlacement(t *testing.T) {
	assert.Equal(t, "https://issuer.example.com/.well-known/oauth-authorization-server",
		wellKnown("https://issuer.example.com", "oauth-authorization-server"))
	assert.Equal(t, "https://issuer.example.com/.well-known/oauth-authorization-server/tenant",
		wellKnown("https://issuer.example.com/tenant", "oauth-authorization-server"))
}
