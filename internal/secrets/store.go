// Package secrets is the file-backed credential store: OAuth tokens,
// dynamically registered client info and PKCE verifiers, one file per
// server, owner-only permissions throughout.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/adrg/xdg"
)

// EnvHome overrides the credential root; used by tests and sandboxes.
const EnvHome = "MCPT_HOME"

// Scope selects which credential files an invalidation removes.
type Scope string

// Invalidation scopes.
const (
	ScopeAll      Scope = "all"
	ScopeClient   Scope = "client"
	ScopeTokens   Scope = "tokens"
	ScopeVerifier Scope = "verifier"
)

const (
	dirTokens    = "tokens"
	dirClients   = "clients"
	dirVerifiers = "verifiers"
)

// Token is the persisted token set for one server.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token has a known expiry in the past.
func (t *Token) Expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// ClientInfo is the persisted result of dynamic client registration. The
// redirect URIs it was registered against are kept so a later flow with a
// different effective port can detect the mismatch and re-register.
type ClientInfo struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

// Store is a credential store rooted at a per-user directory.
type Store struct {
	root string
}

// DefaultRoot resolves the credential root: MCPT_HOME if set, else the
// XDG data directory for the app.
func DefaultRoot(appName string) string {
	if home := os.Getenv(EnvHome); home != "" {
		return filepath.Join(home, appName)
	}
	return filepath.Join(xdg.DataHome, appName)
}

// NewStore returns a store rooted at root. Directories are created lazily
// on first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeName maps a server name onto a safe filename component.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// GetToken returns the stored token for server, or nil when absent or
// unreadable. Reads are forgiving: a corrupt file behaves like a missing one.
func (s *Store) GetToken(server string) *Token {
	var tok Token
	if !s.readJSON(dirTokens, server, ".json", &tok) {
		return nil
	}
	if tok.AccessToken == "" {
		return nil
	}
	return &tok
}

// SaveToken persists the token for server.
func (s *Store) SaveToken(server string, tok *Token) error {
	return s.writeJSON(dirTokens, server, ".json", tok)
}

// GetClientInfo returns the registered client info for server, or nil.
func (s *Store) GetClientInfo(server string) *ClientInfo {
	var info ClientInfo
	if !s.readJSON(dirClients, server, ".json", &info) {
		return nil
	}
	if info.ClientID == "" {
		return nil
	}
	return &info
}

// SaveClientInfo persists the registered client info for server.
func (s *Store) SaveClientInfo(server string, info *ClientInfo) error {
	return s.writeJSON(dirClients, server, ".json", info)
}

// GetVerifier returns the stored PKCE code verifier for server, or "".
func (s *Store) GetVerifier(server string) string {
	data, err := os.ReadFile(s.path(dirVerifiers, server, ".txt"))
	if err != nil {
		return ""
	}
	return string(data)
}

// SaveVerifier persists the PKCE code verifier for server.
func (s *Store) SaveVerifier(server, verifier string) error {
	return s.writeFile(dirVerifiers, server, ".txt", []byte(verifier))
}

// Invalidate removes the credential files in the given scope for server,
// leaving other scopes untouched. Missing files are not an error.
func (s *Store) Invalidate(server string, scope Scope) error {
	var paths []string
	switch scope {
	case ScopeTokens:
		paths = []string{s.path(dirTokens, server, ".json")}
	case ScopeClient:
		paths = []string{s.path(dirClients, server, ".json")}
	case ScopeVerifier:
		paths = []string{s.path(dirVerifiers, server, ".txt")}
	case ScopeAll:
		paths = []string{
			s.path(dirTokens, server, ".json"),
			s.path(dirClients, server, ".json"),
			s.path(dirVerifiers, server, ".txt"),
		}
	default:
		return fmt.Errorf("unknown invalidation scope %q", scope)
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) path(dir, server, ext string) string {
	return filepath.Join(s.root, dir, SanitizeName(server)+ext)
}

func (s *Store) readJSON(dir, server, ext string, v interface{}) bool {
	data, err := os.ReadFile(s.path(dir, server, ext))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (s *Store) writeJSON(dir, server, ext string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	return s.writeFile(dir, server, ext, data)
}

// writeFile writes atomically: temp file in the target directory, 0600,
// then rename. Last writer wins across concurrent CLI invocations; the
// rename keeps readers from ever seeing a torn file.
func (s *Store) writeFile(dir, server, ext string, data []byte) error {
	target := s.path(dir, server, ext)
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}

	tmp, err := os.CreateTemp(parent, "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("rename credential file: %w", err)
	}
	return nil
}
