package session

import (
	"strings"

	"mcpt/internal/config"
)

// IsToolAllowed applies a record's tool filter: a disabledTools match
// denies unconditionally; otherwise a non-empty allowedTools list must
// match; otherwise the tool is allowed.
func IsToolAllowed(name string, srv *config.ServerConfig) bool {
	for _, pattern := range srv.DisabledTools {
		if MatchPattern(pattern, name) {
			return false
		}
	}
	if len(srv.AllowedTools) == 0 {
		return true
	}
	for _, pattern := range srv.AllowedTools {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}

// MatchPattern matches a glob-like pattern against a tool name: '*' spans
// any run of characters, '?' exactly one, everything else is literal, and
// the comparison is case-insensitive.
func MatchPattern(pattern, name string) bool {
	return matchFold(strings.ToLower(pattern), strings.ToLower(name))
}

func matchFold(pattern, name string) bool {
	// Iterative glob with single-star backtracking.
	var starPat, starName = -1, 0
	p, n := 0, 0
	for n < len(name) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == name[n]):
			p++
			n++
		case p < len(pattern) && pattern[p] == '*':
			starPat = p
			starName = n
			p++
		case starPat >= 0:
			starName++
			n = starName
			p = starPat + 1
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
