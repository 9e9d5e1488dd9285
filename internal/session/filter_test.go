package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mcpt/internal/config"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"read_file", "read_file", true},
		{"read_file", "read_files", false},
		{"read_*", "read_file", true},
		{"read_*", "read_", true},
		{"read_*", "readfile", false},
		{"*_file", "read_file", true},
		{"*", "anything", true},
		{"*", "", true},
		{"read_?ile", "read_file", true},
		{"read_?ile", "read_ile", false},
		{"?", "a", true},
		{"?", "", false},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "acb", false},
		{"READ_FILE", "read_file", true},
		{"delete_*", "DELETE_EVERYTHING", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPattern(tt.pattern, tt.name))
		})
	}
}

func TestIsToolAllowed(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		disabled []string
		tool     string
		want     bool
	}{
		{"no filters allows", nil, nil, "anything", true},
		{"allow list matches", []string{"read_*"}, nil, "read_file", true},
		{"allow list excludes", []string{"read_*"}, nil, "write_file", false},
		{"disable denies", nil, []string{"delete_*"}, "delete_file", false},
		{"disable dominates allow", []string{"*"}, []string{"delete_*"}, "delete_file", false},
		{"disable dominates exact allow", []string{"delete_file"}, []string{"delete_*"}, "delete_file", false},
		{"unrelated disable", nil, []string{"delete_*"}, "read_file", true},
		{"case-insensitive disable", nil, []string{"DELETE_*"}, "delete_file", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &config.ServerConfig{
				Name:          "fs",
				Command:       "mcp-fs",
				AllowedTools:  tt.allowed,
				DisabledTools: tt.disabled,
			}
			assert.Equal(t, tt.want, IsToolAllowed(tt.tool, srv))
		})
	}
}
