package webhooks

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 - SHA1 kept for compatibility with legacy webhook senders
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"
)

// VerificationResult contains the result of webhook signature verification.
type VerificationResult struct {
	Valid  bool   // Whether the delivery passed verification
	Replay bool   // True when a stale timestamp was detected
	Error  string // Error message if verification failed
	Method string // Verification method used
}

// VerificationConfig controls inbound signature verification for a delivery.
type VerificationConfig struct {
	Secret          string        // Decrypted webhook secret
	SignatureHeader string        // Header carrying "<algo>=<hex>" (e.g. "X-Signature")
	TimestampHeader string        // Header carrying unix milliseconds (e.g. "X-Timestamp")
	MaxReplayWindow time.Duration // Maximum sender clock skew before rejecting as replay
}

// VerifySignature verifies an inbound delivery. The HMAC is computed over
// payload || timestamp (timestamp appended only when the header is present),
// and compared in constant time against the header-supplied signature of
// form "<algorithm>=<hex digest>".
//
// Replay detection is independent of signature correctness: a stale
// timestamp rejects the delivery even when the signature math checks out,
// and is reported distinctly so operators can tell clock skew from
// tampering. Malformed input never panics, it is reported as invalid.
func VerifySignature(cfg *VerificationConfig, payload []byte, headers map[string]string, now time.Time) *VerificationResult {
	if cfg.Secret == "" {
		return &VerificationResult{Valid: false, Error: "webhook secret not configured"}
	}

	signature := HeaderValue(headers, cfg.SignatureHeader)
	if signature == "" {
		return &VerificationResult{Valid: false, Error: "missing signature header"}
	}

	parts := strings.SplitN(signature, "=", 2)
	if len(parts) != 2 {
		return &VerificationResult{Valid: false, Error: "malformed signature header"}
	}
	algorithm, actualHex := parts[0], parts[1]

	var h func() hash.Hash
	switch algorithm {
	case "sha256":
		h = sha256.New
	case "sha1":
		h = sha1.New
	default:
		return &VerificationResult{
			Valid:  false,
			Error:  fmt.Sprintf("unsupported signature algorithm: %s", algorithm),
			Method: algorithm,
		}
	}

	timestamp := HeaderValue(headers, cfg.TimestampHeader)
	if timestamp != "" {
		eventMs, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return &VerificationResult{Valid: false, Error: "invalid timestamp format", Method: algorithm}
		}

		age := now.Sub(time.UnixMilli(eventMs))
		if age > cfg.MaxReplayWindow {
			return &VerificationResult{
				Valid:  false,
				Replay: true,
				Error:  "webhook replay detected (expired timestamp)",
				Method: algorithm,
			}
		}
	}

	mac := hmac.New(h, []byte(cfg.Secret))
	mac.Write(payload)
	if timestamp != "" {
		mac.Write([]byte(timestamp))
	}
	expectedMAC := mac.Sum(nil)

	actualMAC, err := hex.DecodeString(actualHex)
	if err != nil {
		return &VerificationResult{Valid: false, Error: "invalid signature format", Method: algorithm}
	}

	// Constant-time comparison to prevent timing attacks
	if !hmac.Equal(expectedMAC, actualMAC) {
		return &VerificationResult{Valid: false, Error: "signature mismatch", Method: algorithm}
	}

	return &VerificationResult{Valid: true, Method: algorithm}
}

// HeaderValue looks up a header value case-insensitively.
func HeaderValue(headers map[string]string, name string) string {
	if v := headers[name]; v != "" {
		return v
	}

	lower := strings.ToLower(name)
	for k, v := range headers {
		if strings.ToLower(k) == lower {
			return v
		}
	}

	return ""
}
