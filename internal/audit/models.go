package audit

import "encoding/json"

// Entry is one verification outcome. Timestamp is when the verification
// ran (RFC 3339) and SignedAt is the timestamp carried in the result.
// Digest is hex and empty when the result was malformed.
type Entry struct {
	ID                string `json:"id"`
	Timestamp         string `json:"timestamp"`
	RequestID         string `json:"request_id,omitempty"`
	Address           string `json:"address"`
	Domain            string `json:"domain"`
	PayloadType       string `json:"payload_type"`
	SignedAt          int64  `json:"signed_at"`
	Digest            string `json:"digest,omitempty"`
	Verified          bool   `json:"verified"`
	PubkeyFingerprint string `json:"pubkey_fingerprint,omitempty"`
	Decision          string `json:"decision"`
	LatencyMs         int64  `json:"latency_ms"`
}

// QueryOpts holds filters for audit log queries.
type QueryOpts struct {
	Decision   string
	Address    string
	Domain     string
	Unverified bool
	Since      string
	Limit      int
}

// Stats holds counts of verification outcomes.
type Stats struct {
	Total      int            `json:"total"`
	Verified   int            `json:"verified"`
	Rejected   int            `json:"rejected"`
	ByDecision map[string]int `json:"by_decision"`
}

// RevokedKey is a wallet public key the verifier no longer accepts.
type RevokedKey struct {
	Fingerprint string `json:"fingerprint"`
	Name        string `json:"name"`
	RevokedAt   string `json:"revoked_at"`
	Reason      string `json:"reason,omitempty"`
}

// EntryJSON encodes e for streaming and CLI output.
func EntryJSON(e Entry) []byte {
	b, _ := json.Marshal(e)
	return b
}
