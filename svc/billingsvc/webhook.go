package billingsvc

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/billing/handler"
	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/logger"
)

type webhookRequest struct {
	Body      []byte
	Signature string
}

// rawBody reads the exact bytes the provider signed.
func rawBody(limit int64) handler.Bind {
	return func(r *http.Request, v any) error {
		req, ok := v.(*webhookRequest)
		if !ok {
			return errors.New("rawBody: target must be *webhookRequest")
		}
		body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return errors.Join(handler.ErrRequestEntityTooLarge, err)
			}
			return errors.Join(handler.ErrBadRequest, err)
		}
		req.Body = body
		req.Signature = r.Header.Get(billing.SignatureHeader)
		return nil
	}
}

type webhookAck struct {
	Received bool `json:"received"`
}

func (s *Server) webhookHandler() http.HandlerFunc {
	return handler.Wrap(s.handleWebhook,
		handler.WithBinders[handler.Context, webhookRequest](rawBody(s.cfg.MaxWebhookBytes)),
		handler.WithErrorHandler[handler.Context, webhookRequest](s.webhookE),
	)
}

// handleWebhook acknowledges applied, duplicate and ignored events with 200.
// Any other status makes the provider redeliver.
func (s *Server) handleWebhook(ctx handler.Context, req webhookRequest) handler.Response {
	start := time.Now()
	res, err := s.svc.HandleWebhook(ctx, req.Body, req.Signature)
	if err != nil {
		mapped := httpError(err)
		status := handler.StatusOf(mapped)
		s.metrics.observeWebhook(res, strconv.Itoa(status), time.Since(start))

		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.log.LogAttrs(ctx, level, "webhook delivery rejected",
			logger.EventID(res.EventID), logger.EventType(string(res.EventType)),
			slog.Int("status_code", status), logger.Error(err), logger.Component("webhook"))
		return handler.JSONError(mapped)
	}

	s.metrics.observeWebhook(res, strconv.Itoa(http.StatusOK), time.Since(start))
	return handler.RawJSON(webhookAck{Received: true})
}
