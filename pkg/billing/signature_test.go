package billing_test

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
)

func requireSignatureError(t *testing.T, err error, status int, reason string) {
	t.Helper()
	var se *billing.SignatureError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status, se.Status)
	assert.Equal(t, reason, se.Reason)
}

func TestVerifier_TimestampWindow(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event_id":"evt_1","event_type":"subscription.updated"}`)
	v := billing.NewVerifier(testSecret, 0)

	tests := []struct {
		name   string
		signed time.Time
		reason string
	}{
		{name: "fresh", signed: baseTime},
		{name: "exactly 300s old is accepted", signed: baseTime.Add(-300 * time.Second)},
		{name: "exactly 300s ahead is accepted", signed: baseTime.Add(300 * time.Second)},
		{name: "301s old", signed: baseTime.Add(-301 * time.Second), reason: billing.ReasonTooOld},
		{name: "301s in the future", signed: baseTime.Add(301 * time.Second), reason: billing.ReasonTooNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Verify(body, billing.SignPayload(body, testSecret, tt.signed), baseTime)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			requireSignatureError(t, err, http.StatusUnauthorized, tt.reason)
		})
	}
}

func TestVerifier_Integrity(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event_id":"evt_1","event_type":"transaction.completed","data":{"id":"txn_1"}}`)
	v := billing.NewVerifier(testSecret, 0)
	header := billing.SignPayload(body, testSecret, baseTime)
	ts := "ts=" + strconv.FormatInt(baseTime.Unix(), 10)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, v.Verify(body, header, baseTime))
	})

	t.Run("flipped body byte", func(t *testing.T) {
		t.Parallel()
		tampered := append([]byte(nil), body...)
		tampered[len(tampered)-3] ^= 0x01
		requireSignatureError(t, v.Verify(tampered, header, baseTime), http.StatusForbidden, billing.ReasonMismatch)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		other := billing.SignPayload(body, "other", baseTime)
		requireSignatureError(t, v.Verify(body, other, baseTime), http.StatusForbidden, billing.ReasonMismatch)
	})

	t.Run("mismatched length", func(t *testing.T) {
		t.Parallel()
		requireSignatureError(t, v.Verify(body, ts+";h1=abcd", baseTime), http.StatusForbidden, billing.ReasonMismatch)
	})

	t.Run("odd length hex", func(t *testing.T) {
		t.Parallel()
		requireSignatureError(t, v.Verify(body, ts+";h1=abc", baseTime), http.StatusForbidden, billing.ReasonMismatch)
	})

	t.Run("missing h1", func(t *testing.T) {
		t.Parallel()
		requireSignatureError(t, v.Verify(body, ts, baseTime), http.StatusForbidden, billing.ReasonMismatch)
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, v.Verify(body, "h2=zzz; "+header+" ;foo", baseTime))
	})
}

func TestVerifier_Malformed(t *testing.T) {
	t.Parallel()

	body := []byte(`{}`)
	v := billing.NewVerifier(testSecret, 0)

	tests := []struct {
		name   string
		body   []byte
		header string
		status int
		reason string
	}{
		{name: "missing header", body: body, header: "", status: http.StatusBadRequest, reason: billing.ReasonMissingSignature},
		{name: "missing body", body: nil, header: "ts=1;h1=00", status: http.StatusBadRequest, reason: billing.ReasonMissingBody},
		{name: "missing timestamp", body: body, header: "h1=00", status: http.StatusUnauthorized, reason: billing.ReasonMissingTimestamp},
		{name: "non numeric timestamp", body: body, header: "ts=yesterday;h1=00", status: http.StatusUnauthorized, reason: billing.ReasonInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			requireSignatureError(t, v.Verify(tt.body, tt.header, baseTime), tt.status, tt.reason)
		})
	}
}
