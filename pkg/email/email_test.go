package email_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/email"
	"github.com/dmitrymomot/billing/pkg/notifications"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendEmail(ctx context.Context, msg email.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func validMessage() email.Message {
	return email.Message{To: "user@example.com", Subject: "Hi", HTMLBody: "<p>x</p>"}
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*email.Message)
		wantErr bool
	}{
		{"valid", func(*email.Message) {}, false},
		{"text only", func(m *email.Message) { m.HTMLBody = ""; m.TextBody = "x" }, false},
		{"missing recipient", func(m *email.Message) { m.To = "" }, true},
		{"malformed recipient", func(m *email.Message) { m.To = "not an email" }, true},
		{"missing subject", func(m *email.Message) { m.Subject = "" }, true},
		{"missing body", func(m *email.Message) { m.HTMLBody = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := validMessage()
			tt.mutate(&msg)
			err := msg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, email.ErrInvalidMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewPostmarkSender(t *testing.T) {
	t.Parallel()

	_, err := email.NewPostmarkSender(email.Config{SenderEmail: "billing@example.com"})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	_, err = email.NewPostmarkSender(email.Config{PostmarkServerToken: "token", SenderEmail: "nope"})
	assert.ErrorIs(t, err, email.ErrInvalidConfig)

	s, err := email.NewPostmarkSender(email.Config{PostmarkServerToken: "token", SenderEmail: "billing@example.com"})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestPostmarkSender_SendEmail(t *testing.T) {
	t.Parallel()

	cfg := email.Config{
		PostmarkServerToken: "server-token",
		SenderEmail:         "billing@example.com",
		SupportEmail:        "support@example.com",
		MessageStream:       "outbound",
	}

	t.Run("sends", func(t *testing.T) {
		t.Parallel()
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "/email"))
			assert.Equal(t, "server-token", r.Header.Get("X-Postmark-Server-Token"))
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"To":"user@example.com","MessageID":"m-1","ErrorCode":0,"Message":"OK"}`))
		}))
		defer srv.Close()

		s, err := email.NewPostmarkSender(cfg, email.WithPostmarkBaseURL(srv.URL), email.WithPostmarkHTTPClient(srv.Client()))
		require.NoError(t, err)
		require.NoError(t, s.SendEmail(context.Background(), email.Message{
			To: "user@example.com", Subject: "Hi", HTMLBody: "<p>x</p>", Tag: "payment_failed",
		}))
		assert.Equal(t, "billing@example.com", got["From"])
		assert.Equal(t, "support@example.com", got["ReplyTo"])
		assert.Equal(t, "payment_failed", got["Tag"])
	})

	t.Run("api error code", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ErrorCode":406,"Message":"Inactive recipient"}`))
		}))
		defer srv.Close()

		s, err := email.NewPostmarkSender(cfg, email.WithPostmarkBaseURL(srv.URL))
		require.NoError(t, err)
		err = s.SendEmail(context.Background(), validMessage())
		assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
	})

	t.Run("invalid message is not sent", func(t *testing.T) {
		t.Parallel()
		s, err := email.NewPostmarkSender(cfg, email.WithPostmarkBaseURL("http://127.0.0.1:1"))
		require.NoError(t, err)
		err = s.SendEmail(context.Background(), email.Message{To: "user@example.com"})
		assert.ErrorIs(t, err, email.ErrInvalidMessage)
	})
}

func TestDevSender(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "mail")
	s := email.NewDevSender(dir)

	msg := validMessage()
	msg.Tag = "Subscription Confirmed!"
	require.NoError(t, s.SendEmail(context.Background(), msg))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Contains(t, e.Name(), "subscription_confirmed")
	}

	assert.ErrorIs(t, s.SendEmail(context.Background(), email.Message{}), email.ErrInvalidMessage)
}

func TestNewSenderFromConfig(t *testing.T) {
	t.Parallel()

	s, err := email.NewSenderFromConfig(email.Config{DevDir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &email.DevSender{}, s)

	s, err = email.NewSenderFromConfig(email.Config{PostmarkServerToken: "t", SenderEmail: "a@example.com"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &email.PostmarkSender{}, s)
}

func TestDeliverer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := email.Config{ProductName: "Chatbots", SupportEmail: "support@example.com"}
	n := notifications.Notification{
		ID:        "n1",
		UserID:    "u1",
		Kind:      "payment_failed",
		Type:      notifications.TypeError,
		Title:     "Payment failed",
		Message:   "We could not charge your card.\n\nPlease update it.",
		ActionURL: "https://example.com/billing",
		Data:      map[string]string{"action_label": "Update card"},
	}

	t.Run("renders and sends", func(t *testing.T) {
		t.Parallel()
		sender := &mockSender{}
		sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(m email.Message) bool {
			return m.To == "user@example.com" &&
				m.Subject == "Payment failed" &&
				m.Tag == "payment_failed" &&
				m.Metadata["notification_id"] == "n1" &&
				strings.Contains(m.HTMLBody, "Please update it.") &&
				strings.Contains(m.HTMLBody, "Update card")
		})).Return(nil).Once()

		d := email.NewDeliverer(sender, func(_ context.Context, userID string) (string, error) {
			assert.Equal(t, "u1", userID)
			return "user@example.com", nil
		}, cfg)
		require.NoError(t, d.Deliver(ctx, n))
		sender.AssertExpectations(t)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		t.Parallel()
		sender := &mockSender{}
		d := email.NewDeliverer(sender, func(context.Context, string) (string, error) { return "", nil }, cfg)
		assert.ErrorIs(t, d.Deliver(ctx, n), email.ErrNoRecipient)
		sender.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	})

	t.Run("requires dependencies", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { email.NewDeliverer(nil, func(context.Context, string) (string, error) { return "", nil }, cfg) })
		assert.Panics(t, func() { email.NewDeliverer(&mockSender{}, nil, cfg) })
	})
}
