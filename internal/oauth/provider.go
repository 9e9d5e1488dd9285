package oauth

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/browser"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"mcpt/internal/clierr"
	"mcpt/internal/config"
	"mcpt/internal/secrets"
)

// Provider owns one authorization flow for one server: the callback
// listener lifecycle, client information resolution, PKCE state, the
// browser hand-off and token persistence. One instance per CLI invocation
// and flow; there is no process-global listener.
//
// Flow states: Idle -> ListenerReady -> Authorizing ->
// (CodeReceived | CallbackError | Timeout) -> TokensSaved. CallbackError
// and Timeout are terminal; TokensSaved hands control back to the
// transport factory.
type Provider struct {
	serverName string
	serverURL  string
	cfg        *config.OAuthConfig
	store      *secrets.Store
	logger     *zap.Logger

	listener *Listener
	meta     *ServerMetadata

	// effectivePort survives listener cleanup so the redirect URL stays
	// reportable after the flow ends.
	effectivePort int

	// nonInteractive captures the authorization URL instead of launching
	// a browser, for callers that cannot present one.
	nonInteractive bool
	capturedURL    string
}

// NewProvider creates a provider for serverName. cfg may be nil when the
// server has no oauth block but challenges with 401 anyway.
func NewProvider(serverName, serverURL string, cfg *config.OAuthConfig, store *secrets.Store, logger *zap.Logger) *Provider {
	return &Provider{
		serverName: serverName,
		serverURL:  serverURL,
		cfg:        cfg,
		store:      store,
		logger:     logger,
	}
}

// SetNonInteractive switches the provider to URL-capture mode.
func (p *Provider) SetNonInteractive(v bool) {
	p.nonInteractive = v
}

// NonInteractive reports whether the provider captures URLs instead of
// opening a browser.
func (p *Provider) NonInteractive() bool {
	return p.nonInteractive
}

// CapturedURL returns the authorization URL captured in non-interactive
// mode, or "".
func (p *Provider) CapturedURL() string {
	return p.capturedURL
}

// TokenStore returns the file-backed token store for this server.
func (p *Provider) TokenStore() *FileTokenStore {
	return NewFileTokenStore(p.store, p.serverName)
}

// Start binds the callback listener on the first available port from the
// fallback list. Idempotent; re-entry reuses the bound listener.
func (p *Provider) Start() error {
	if p.listener != nil {
		return nil
	}
	ln, err := StartListener(p.cfg.PortOrder(), p.logger)
	if err != nil {
		return clierr.Wrap(clierr.CodeOAuthConfigError, err, "cannot bind an OAuth callback port for %q", p.serverName)
	}
	p.listener = ln
	p.effectivePort = ln.Port()
	return nil
}

// EffectivePort returns the bound callback port, or 0 before Start.
func (p *Provider) EffectivePort() int {
	return p.effectivePort
}

// RedirectURL derives the redirect URL from the effective port. The
// standard HTTP port is elided. Client-credentials flows have no redirect.
func (p *Provider) RedirectURL() string {
	if p.cfg.EffectiveGrantType() == config.GrantClientCredentials {
		return ""
	}
	return redirectURLForPort(p.EffectivePort())
}

// redirectURLForPort formats the callback URL; the standard HTTP port is
// elided per the usual URL convention.
func redirectURLForPort(port int) string {
	if port == 80 {
		return "http://localhost/callback"
	}
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// Cleanup releases the callback listener if one is bound.
func (p *Provider) Cleanup() {
	if p.listener != nil {
		p.listener.Cleanup()
		p.listener = nil
	}
}

// ResolveClientInfo determines the OAuth client identity: a static clientId
// from the config wins unconditionally; otherwise the persisted registration
// is used if its redirect_uris still match the current redirect URL (a
// mismatch invalidates it, since the authorization server would reject the
// redirect); otherwise a dynamic registration is performed and persisted.
func (p *Provider) ResolveClientInfo(ctx context.Context) (*secrets.ClientInfo, error) {
	if p.cfg != nil && p.cfg.ClientID != "" {
		return &secrets.ClientInfo{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
		}, nil
	}

	redirect := p.RedirectURL()
	if info := p.store.GetClientInfo(p.serverName); info != nil {
		if containsString(info.RedirectURIs, redirect) {
			return info, nil
		}
		p.logger.Debug("persisted client registration has stale redirect_uris, re-registering",
			zap.String("server", p.serverName),
			zap.Strings("registered", info.RedirectURIs),
			zap.String("current", redirect))
		if err := p.store.Invalidate(p.serverName, secrets.ScopeClient); err != nil {
			return nil, clierr.Wrap(clierr.CodeOAuthFlowError, err, "cannot invalidate stale client registration for %q", p.serverName)
		}
	}

	meta, err := p.metadata(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeOAuthFlowError, err, "OAuth discovery failed for %q", p.serverName).
			WithSuggestion("configure oauth.clientId manually if the server does not publish metadata")
	}

	scope := ""
	if p.cfg != nil {
		scope = p.cfg.Scope
	}
	info, err := registerClient(ctx, meta.RegistrationEndpoint, redirect, scope)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeOAuthFlowError, err, "dynamic client registration failed for %q", p.serverName).
			WithSuggestion("configure oauth.clientId manually")
	}
	if err := p.store.SaveClientInfo(p.serverName, info); err != nil {
		return nil, clierr.Wrap(clierr.CodeOAuthFlowError, err, "cannot persist client registration for %q", p.serverName)
	}
	return info, nil
}

// SaveCodeVerifier persists the PKCE verifier through the credential store.
func (p *Provider) SaveCodeVerifier(verifier string) error {
	return p.store.SaveVerifier(p.serverName, verifier)
}

// CodeVerifier reads the persisted PKCE verifier. Absence at exchange time
// is a fatal flow error.
func (p *Provider) CodeVerifier() (string, error) {
	v := p.store.GetVerifier(p.serverName)
	if v == "" {
		return "", clierr.New(clierr.CodeOAuthFlowError, "PKCE code verifier missing for %q", p.serverName).
			WithSuggestion("restart the authorization flow")
	}
	return v, nil
}

// CompleteAuthorization runs the whole authorization-code-with-PKCE flow:
// listener, client resolution, browser redirect, callback wait, code
// exchange, token persistence. In non-interactive mode it captures the
// authorization URL and returns AUTH_REQUIRED instead of blocking.
func (p *Provider) CompleteAuthorization(ctx context.Context) error {
	if err := p.Start(); err != nil {
		return err
	}
	defer p.Cleanup()

	info, err := p.ResolveClientInfo(ctx)
	if err != nil {
		return err
	}
	meta, err := p.metadata(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeOAuthFlowError, err, "OAuth discovery failed for %q", p.serverName)
	}

	oc := p.codeFlowConfig(info, meta)

	verifier := oauth2.GenerateVerifier()
	if err := p.SaveCodeVerifier(verifier); err != nil {
		return clierr.Wrap(clierr.CodeOAuthFlowError, err, "cannot persist PKCE verifier for %q", p.serverName)
	}
	state := oauth2.GenerateVerifier() // random URL-safe string; doubles as CSRF state

	authURL := oc.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	// Ports are chosen at runtime, so the redirect_uri baked into the URL
	// is rewritten to the effective value before hand-off.
	authURL, err = RewriteRedirectURI(authURL, p.RedirectURL())
	if err != nil {
		return clierr.Wrap(clierr.CodeOAuthFlowError, err, "cannot prepare authorization URL for %q", p.serverName)
	}

	if p.nonInteractive {
		p.capturedURL = authURL
		return clierr.New(clierr.CodeAuthRequired, "server %q requires authorization", p.serverName).
			WithDetails("open this URL to authorize: %s", authURL).
			WithSuggestion("run the command again in an interactive session")
	}

	p.openBrowser(authURL)

	res, err := p.listener.Wait(ctx, config.CallbackTimeout)
	if err != nil {
		return p.flowError(err)
	}
	if res.State != state {
		return clierr.New(clierr.CodeOAuthFlowError, "authorization state mismatch for %q", p.serverName).
			WithSuggestion("restart the flow; if it persists the callback may have been tampered with")
	}

	verifier, err = p.CodeVerifier()
	if err != nil {
		return err
	}

	tok, err := oc.Exchange(ctx, res.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		return clierr.Wrap(clierr.CodeOAuthFlowError, err, "token exchange failed for %q", p.serverName).
			WithSuggestion("check the server's token endpoint and client credentials")
	}

	if err := p.saveOAuth2Token(tok); err != nil {
		return clierr.Wrap(clierr.CodeOAuthFlowError, err, "cannot persist tokens for %q", p.serverName)
	}
	// Verifier is single-use; drop it now that tokens are saved.
	_ = p.store.Invalidate(p.serverName, secrets.ScopeVerifier)

	p.logger.Debug("authorization flow complete", zap.String("server", p.serverName))
	return nil
}

// ClientCredentialsParams builds the URL-encoded token request parameters
// for the client-credentials grant. scopeOverride replaces the configured
// scope when non-empty.
func (p *Provider) ClientCredentialsParams(scopeOverride string) url.Values {
	params := url.Values{}
	params.Set("grant_type", "client_credentials")
	scope := scopeOverride
	if scope == "" && p.cfg != nil {
		scope = p.cfg.Scope
	}
	if scope != "" {
		params.Set("scope", scope)
	}
	return params
}

// EnsureClientCredentialsToken fetches and persists a token via the
// client-credentials grant unless a live one is already stored.
func (p *Provider) EnsureClientCredentialsToken(ctx context.Context) error {
	if tok := p.store.GetToken(p.serverName); tok != nil && !tok.Expired() {
		return nil
	}

	meta, err := p.metadata(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeOAuthFlowError, err, "OAuth discovery failed for %q", p.serverName)
	}

	cc := clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		TokenURL:     meta.TokenEndpoint,
	}
	if p.cfg.Scope != "" {
		cc.Scopes = []string{p.cfg.Scope}
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeOAuthFlowError, err, "client-credentials token request failed for %q", p.serverName).
			WithSuggestion("verify oauth.clientId and oauth.clientSecret")
	}
	return p.saveOAuth2Token(tok)
}

func (p *Provider) codeFlowConfig(info *secrets.ClientInfo, meta *ServerMetadata) *oauth2.Config {
	oc := &oauth2.Config{
		ClientID:     info.ClientID,
		ClientSecret: info.ClientSecret,
		RedirectURL:  p.RedirectURL(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   meta.AuthorizationEndpoint,
			TokenURL:  meta.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if p.cfg != nil && p.cfg.Scope != "" {
		oc.Scopes = []string{p.cfg.Scope}
	}
	return oc
}

func (p *Provider) metadata(ctx context.Context) (*ServerMetadata, error) {
	if p.meta != nil {
		return p.meta, nil
	}
	meta, err := DiscoverServerMetadata(ctx, p.serverURL)
	if err != nil {
		return nil, err
	}
	p.meta = meta
	return meta, nil
}

func (p *Provider) saveOAuth2Token(tok *oauth2.Token) error {
	return p.store.SaveToken(p.serverName, &secrets.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	})
}

// openBrowser hands the URL to the platform browser. Fire and forget: a
// launch failure never aborts the flow, the URL is printed either way.
func (p *Provider) openBrowser(authURL string) {
	fmt.Fprintf(os.Stderr, "Opening browser for authorization. If nothing happens, open:\n  %s\n", authURL)
	if err := browser.OpenURL(authURL); err != nil {
		p.logger.Debug("browser launch failed", zap.Error(err))
	}
}

func (p *Provider) flowError(err error) error {
	e := clierr.Wrap(clierr.CodeOAuthFlowError, err, "authorization flow failed for %q", p.serverName)
	msg := err.Error()
	switch {
	case strings.Contains(msg, "timed out"):
		e.WithSuggestion("complete the browser authorization within %s, or increase the callback timeout", config.CallbackTimeout)
	case strings.Contains(msg, "authorization server returned"):
		e.WithSuggestion("the server rejected the request; check scopes and client configuration")
	default:
		e.WithSuggestion("re-run with MCPT_DEBUG=1 for the full flow log")
	}
	return e
}

// RewriteRedirectURI replaces the redirect_uri query parameter of an
// authorization URL with the effective callback URL.
func RewriteRedirectURI(authURL, redirect string) (string, error) {
	if redirect == "" {
		return authURL, nil
	}
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("redirect_uri", redirect)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
