package billingsvc

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrymomot/billing/handler"
	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/binder"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/notifications"
)

func jsonBody() handler.Bind { return binder.JSON() }

type checkoutRequest struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"success_url"`
}

func (s *Server) checkout(ctx *Context, req checkoutRequest) handler.Response {
	desc, err := s.svc.BuildCheckout(ctx, billing.CheckoutRequest{
		UserID:     ctx.Identity.UserID,
		Email:      ctx.Identity.Email,
		Plan:       billing.Plan(strings.ToLower(strings.TrimSpace(req.Plan))),
		SuccessURL: req.SuccessURL,
	})
	s.metrics.observeCheckout(outcomeOf(err))
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(desc)
}

type portalResponse struct {
	URL string `json:"url"`
}

func (s *Server) portal(ctx *Context, _ struct{}) handler.Response {
	url, err := s.svc.BuildPortal(ctx, ctx.Identity.UserID)
	s.metrics.observePortal(outcomeOf(err))
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(portalResponse{URL: url})
}

type subscriptionResponse struct {
	*billing.Subscription
	Limits *billing.PlanLimits `json:"limits,omitempty"`
}

func (s *Server) subscription(ctx *Context, _ struct{}) handler.Response {
	sub, err := s.svc.GetSubscription(ctx, ctx.Identity.UserID)
	if err != nil {
		return s.fail(ctx, err)
	}
	resp := subscriptionResponse{Subscription: sub}
	if s.catalog != nil {
		if limits, ok := s.catalog.Limits(sub.Plan); ok {
			resp.Limits = &limits
		}
	}
	return handler.JSON(resp)
}

type listRequest struct {
	OnlyUnread bool
	Limit      int
	Kinds      []string
}

const maxListLimit = 100

// queryBinder reads ?unread=true&limit=20&kind=a&kind=b.
func queryBinder() handler.Bind {
	return func(r *http.Request, v any) error {
		req, ok := v.(*listRequest)
		if !ok {
			return errors.New("queryBinder: target must be *listRequest")
		}
		q := r.URL.Query()
		if raw := q.Get("unread"); raw != "" {
			unread, err := strconv.ParseBool(raw)
			if err != nil {
				return errors.Join(handler.ErrBadRequest.WithMessage("unread must be a boolean"), err)
			}
			req.OnlyUnread = unread
		}
		req.Limit = 20
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 || limit > maxListLimit {
				return handler.ErrBadRequest.WithMessage("limit must be between 1 and 100")
			}
			req.Limit = limit
		}
		req.Kinds = q["kind"]
		return nil
	}
}

type listResponse struct {
	Notifications []notifications.Notification `json:"notifications"`
	Unread        int                          `json:"unread"`
}

func (s *Server) listNotifications(ctx *Context, req listRequest) handler.Response {
	userID := ctx.Identity.UserID
	list, err := s.inbox.List(ctx, userID, notifications.ListOptions{
		Limit:      req.Limit,
		OnlyUnread: req.OnlyUnread,
		Kinds:      req.Kinds,
	})
	if err != nil {
		return s.fail(ctx, err)
	}
	unread, err := s.inbox.CountUnread(ctx, userID)
	if err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(listResponse{Notifications: list, Unread: unread})
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) markRead(ctx *Context, req markReadRequest) handler.Response {
	if len(req.IDs) == 0 || len(req.IDs) > maxListLimit {
		return handler.JSONError(handler.ErrBadRequest.WithMessage("ids must contain 1 to 100 entries"))
	}
	if err := s.inbox.MarkRead(ctx, ctx.Identity.UserID, req.IDs...); err != nil {
		return s.fail(ctx, err)
	}
	return handler.JSON(map[string]int{"marked": len(req.IDs)})
}

// fail logs err and renders its HTTP mapping.
func (s *Server) fail(ctx *Context, err error) handler.Response {
	mapped := httpError(err)
	status := handler.StatusOf(mapped)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	r := ctx.Request()
	s.log.LogAttrs(ctx, level, "billing request failed",
		logger.UserID(ctx.Identity.UserID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status_code", status),
		logger.Error(err))
	return handler.JSONError(mapped)
}
