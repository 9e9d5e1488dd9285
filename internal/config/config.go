// Package config loads and validates the mcpt server catalogue.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a wrapper around time.Duration that can be marshaled to/from JSON
type Duration time.Duration

// MarshalJSON implements json.Marshaler interface
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler interface
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the top level of mcpt.json.
type Config struct {
	Servers map[string]*ServerConfig `json:"mcpServers"`

	// Path the config was loaded from; set by the loader, not serialized.
	Path string `json:"-"`
}

// Names returns the configured server names in map iteration order, which
// Go does not guarantee; callers needing determinism sort the result.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	return names
}

// Server returns the record for name, or nil if not configured.
func (c *Config) Server(name string) *ServerConfig {
	if c.Servers == nil {
		return nil
	}
	return c.Servers[name]
}

// ServerConfig is one entry of the mcpServers mapping. Exactly one of
// Command (stdio) or URL (http) is set; the loader rejects anything else.
type ServerConfig struct {
	Name string `json:"-"` // populated from the map key

	// stdio
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	WorkingDir string            `json:"cwd,omitempty"`

	// http
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout Duration          `json:"timeout,omitempty"`
	OAuth   *OAuthConfig      `json:"oauth,omitempty"`

	// Tool filter, evaluated by the connection facade.
	AllowedTools  []string `json:"allowedTools,omitempty"`
	DisabledTools []string `json:"disabledTools,omitempty"`
}

// IsStdio reports whether the record describes a local subprocess server.
func (s *ServerConfig) IsStdio() bool {
	return s.Command != ""
}

// RequestTimeout returns the per-server HTTP timeout, or def when unset.
func (s *ServerConfig) RequestTimeout(def time.Duration) time.Duration {
	if s.Timeout > 0 {
		return time.Duration(s.Timeout)
	}
	return def
}

// OAuth grant types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
)

// OAuthConfig is the optional oauth block of an HTTP server record.
type OAuthConfig struct {
	GrantType     string `json:"grantType,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	ClientSecret  string `json:"clientSecret,omitempty"`
	Scope         string `json:"scope,omitempty"`
	CallbackPort  int    `json:"callbackPort,omitempty"`
	CallbackPorts []int  `json:"callbackPorts,omitempty"`
}

// EffectiveGrantType returns the configured grant, defaulting to the
// authorization-code flow.
func (o *OAuthConfig) EffectiveGrantType() string {
	if o == nil || o.GrantType == "" {
		return GrantAuthorizationCode
	}
	return o.GrantType
}

// PortOrder computes the callback listener port fallback list. An explicit
// callbackPorts list overrides the default search order entirely; a single
// callbackPort is tried first, ahead of the defaults. Port 0 (OS-assigned)
// terminates the default order so the flow never requires elevation.
func (o *OAuthConfig) PortOrder() []int {
	if o != nil && len(o.CallbackPorts) > 0 {
		return dedupePorts(o.CallbackPorts)
	}
	order := make([]int, 0, len(DefaultCallbackPorts)+1)
	if o != nil && o.CallbackPort > 0 {
		order = append(order, o.CallbackPort)
	}
	order = append(order, DefaultCallbackPorts...)
	return dedupePorts(order)
}

func dedupePorts(ports []int) []int {
	seen := make(map[int]bool, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
