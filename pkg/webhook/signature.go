package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature headers set on every signed delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderID        = "X-Webhook-ID"
)

// SignPayload returns the signature header value "t=<unix>,v1=<hex>", where
// v1 is HMAC-SHA256(secret, "<unix>." + payload).
func SignPayload(secret string, payload []byte, at time.Time) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + mac(secret, ts, payload), nil
}

// VerifySignature checks a header produced by SignPayload. A positive maxAge
// rejects signatures older than maxAge or more than a minute in the future.
func VerifySignature(secret string, payload []byte, header string, now time.Time, maxAge time.Duration) error {
	if secret == "" {
		return ErrMissingSecret
	}
	var ts, sig string
	for part := range strings.SplitSeq(header, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sig == "" {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	if maxAge > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > maxAge || age < -time.Minute {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}
	if !hmac.Equal([]byte(sig), []byte(mac(secret, ts, payload))) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

func mac(secret, ts string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
