package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/handler"
	"github.com/dmitrymomot/billing/pkg/binder"
)

type checkout struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"success_url"`
}

func request(body, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestJSON(t *testing.T) {
	t.Parallel()

	t.Run("decodes", func(t *testing.T) {
		t.Parallel()
		var got checkout
		err := binder.JSON()(request(`{"plan":"starter","success_url":"https://app"}`, "application/json; charset=utf-8"), &got)
		require.NoError(t, err)
		assert.Equal(t, checkout{Plan: "starter", SuccessURL: "https://app"}, got)
	})

	tests := []struct {
		name        string
		body        string
		contentType string
		opts        []binder.JSONOption
		sentinel    error
		status      int
	}{
		{name: "missing content type", body: `{}`, sentinel: binder.ErrMissingContentType, status: http.StatusUnsupportedMediaType},
		{name: "wrong content type", body: `{}`, contentType: "text/plain", sentinel: binder.ErrUnsupportedMediaType, status: http.StatusUnsupportedMediaType},
		{name: "malformed", body: `{"plan":`, contentType: "application/json", sentinel: binder.ErrFailedToParseJSON, status: http.StatusBadRequest},
		{name: "empty", body: ``, contentType: "application/json", sentinel: binder.ErrFailedToParseJSON, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"plan":"starter","coupon":"x"}`, contentType: "application/json", sentinel: binder.ErrFailedToParseJSON, status: http.StatusBadRequest},
		{name: "trailing data", body: `{"plan":"starter"} {}`, contentType: "application/json", sentinel: binder.ErrFailedToParseJSON, status: http.StatusBadRequest},
		{name: "too large", body: `{"plan":"` + strings.Repeat("a", 64) + `"}`, contentType: "application/json",
			opts: []binder.JSONOption{binder.WithMaxBytes(32)}, sentinel: binder.ErrBodyTooLarge, status: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got checkout
			err := binder.JSON(tt.opts...)(request(tt.body, tt.contentType), &got)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.status, handler.StatusOf(err))
		})
	}
}
