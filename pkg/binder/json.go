package binder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/dmitrymomot/billing/handler"
)

// DefaultMaxJSONSize bounds JSON request bodies (64 KiB).
const DefaultMaxJSONSize int64 = 64 << 10

type jsonConfig struct {
	maxBytes int64
}

type JSONOption func(*jsonConfig)

func WithMaxBytes(n int64) JSONOption {
	return func(c *jsonConfig) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// JSON returns a binder decoding application/json bodies into v.
func JSON(opts ...JSONOption) handler.Bind {
	cfg := jsonConfig{maxBytes: DefaultMaxJSONSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(r *http.Request, v any) error {
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			return errors.Join(handler.ErrUnsupportedMediaType.WithMessage("expected application/json"),
				ErrMissingContentType)
		}
		if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
			return errors.Join(handler.ErrUnsupportedMediaType.WithMessage("expected application/json"),
				fmt.Errorf("%w: %s", ErrUnsupportedMediaType, ct))
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, cfg.maxBytes+1))
		if err != nil {
			return errors.Join(handler.ErrBadRequest, ErrFailedToParseJSON, err)
		}
		if int64(len(body)) > cfg.maxBytes {
			return errors.Join(handler.ErrRequestEntityTooLarge, ErrBodyTooLarge)
		}

		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("empty body")
			}
			return errors.Join(handler.ErrBadRequest.WithMessage("invalid JSON body"), ErrFailedToParseJSON, err)
		}
		if dec.More() {
			return errors.Join(handler.ErrBadRequest.WithMessage("invalid JSON body"), ErrFailedToParseJSON,
				errors.New("unexpected data after JSON object"))
		}
		return nil
	}
}
