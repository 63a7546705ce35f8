package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance is the maximum clock skew accepted in either
// direction. The boundary itself is accepted.
const DefaultSignatureTolerance = 300 * time.Second

// SignatureHeader carries "ts=<unix>;h1=<hex>" on Paddle deliveries.
const SignatureHeader = "Paddle-Signature"

// Verifier authenticates provider webhooks signed as
// "ts=<unix-seconds>;h1=<hex(HMAC-SHA256(body, secret))>".
type Verifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewVerifier returns a verifier for secret. A non-positive tolerance falls
// back to DefaultSignatureTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance}
}

// Verify checks body against header at now. It returns nil or a
// *SignatureError and has no side effects.
func (v *Verifier) Verify(body []byte, header string, now time.Time) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return badRequest(ReasonMissingSignature)
	}
	if len(body) == 0 {
		return badRequest(ReasonMissingBody)
	}

	ts, sig := parseSignatureHeader(header)
	if ts == "" {
		return unauthorized(ReasonMissingTimestamp)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return unauthorized(ReasonInvalidTimestamp)
	}

	age := now.Sub(time.Unix(unix, 0))
	switch {
	case age > v.tolerance:
		return unauthorized(ReasonTooOld)
	case -age > v.tolerance:
		return unauthorized(ReasonTooNew)
	}

	given, err := hex.DecodeString(sig)
	if err != nil || sig == "" {
		return forbidden()
	}
	expected := v.mac(body)
	if len(given) != len(expected) || !hmac.Equal(given, expected) {
		return forbidden()
	}
	return nil
}

func (v *Verifier) mac(body []byte) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write(body)
	return m.Sum(nil)
}

// parseSignatureHeader extracts ts and h1. Unknown keys are ignored so the
// provider can add signature schemes without breaking verification.
func parseSignatureHeader(header string) (ts, h1 string) {
	for part := range strings.SplitSeq(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "h1":
			if h1 == "" {
				h1 = strings.TrimSpace(value)
			}
		}
	}
	return ts, h1
}

// SignPayload builds a signature header for body. Used by tests and local
// tooling that replays captured events.
func SignPayload(body []byte, secret string, at time.Time) string {
	v := NewVerifier(secret, 0)
	return "ts=" + strconv.FormatInt(at.Unix(), 10) + ";h1=" + hex.EncodeToString(v.mac(body))
}
