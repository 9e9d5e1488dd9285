package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash returns the stable content hash of a server record: the record is
// serialised to canonical JSON (object keys sorted, which encoding/json
// guarantees for maps) and the SHA-256 digest truncated to 16 hex chars.
// Any field change flips the hash; key order in the source file does not.
func (s *ServerConfig) Hash() string {
	// Struct -> map round trip so the final marshal sorts keys.
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	canonical, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}
