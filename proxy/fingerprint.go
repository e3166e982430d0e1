package proxy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// fingerprintInput is marshaled with fields in sorted key order; combined
// with encoding/json's shortest round-trip float rendering this yields the
// canonical form the fingerprint is defined over.
type fingerprintInput struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	TenantScope string  `json:"tenant_scope"`
	Text        string  `json:"text"`
}

// Fingerprint is the exact-identity key of a cache entry:
// SHA-256 over the canonical JSON of {tenant_scope, text, model, temperature},
// rendered lowercase hex. Semantic lookup never uses it; it only names
// entries.
func Fingerprint(tenantScope string, text string, model string, temperature float32) string {
	payload, err := json.Marshal(fingerprintInput{
		Model:       model,
		Temperature: float64(temperature),
		TenantScope: tenantScope,
		Text:        text,
	})
	if err != nil {
		// Only reachable with invalid UTF-8, which json escapes anyway.
		payload = []byte(tenantScope + text + model)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
