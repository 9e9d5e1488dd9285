package oauth

import (
	"fmt"

	"github.com/mark3labs/mcp-go/client/transport"

	"mcpt/internal/secrets"
)

// FileTokenStore adapts the credential store to the MCP client library's
// token store interface, so refreshed tokens land on disk and a later CLI
// invocation reuses them without a browser round trip.
type FileTokenStore struct {
	server string
	store  *secrets.Store
}

// NewFileTokenStore returns a token store for one server.
func NewFileTokenStore(store *secrets.Store, server string) *FileTokenStore {
	return &FileTokenStore{server: server, store: store}
}

// GetToken implements transport.TokenStore.
func (s *FileTokenStore) GetToken() (*transport.Token, error) {
	tok := s.store.GetToken(s.server)
	if tok == nil {
		return nil, fmt.Errorf("no token stored for server %q", s.server)
	}
	return &transport.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	}, nil
}

// SaveToken implements transport.TokenStore.
func (s *FileTokenStore) SaveToken(tok *transport.Token) error {
	return s.store.SaveToken(s.server, &secrets.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	})
}
