package archive

import (
	"context"
	"fmt"
	"strings"
)

// Store persists blobs by key.
type Store interface {
	Put(ctx context.Context, key string, body []byte, opts ...PutOption) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns the keys below prefix, recursively and sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// PutOption sets object attributes. Backends that cannot store an
// attribute ignore it.
type PutOption func(*putOptions)

type putOptions struct {
	contentType string
	metadata    map[string]string
}

func WithContentType(ct string) PutOption {
	return func(o *putOptions) { o.contentType = ct }
}

func WithMetadata(md map[string]string) PutOption {
	return func(o *putOptions) { o.metadata = md }
}

func applyPut(opts []PutOption) putOptions {
	o := putOptions{contentType: "application/octet-stream"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, nil
}

func cleanPrefix(prefix string) (string, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	if strings.Contains(prefix, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, prefix)
	}
	return prefix, nil
}
