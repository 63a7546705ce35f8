// Package binder decodes JSON request bodies for handler.Wrap.
//
//	handler.Wrap(checkout, handler.WithBinders[handler.Context, checkoutRequest](binder.JSON()))
//
// Decoding is strict: unknown fields, trailing data and bodies above the
// size limit are rejected. Errors wrap both a binder sentinel and the
// matching handler.HTTPError, so they render with the right status.
package binder
