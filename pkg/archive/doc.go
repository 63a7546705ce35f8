// Package archive stores immutable blobs under slash separated keys, on the
// local filesystem or in Amazon S3 and S3 compatible services.
//
//	store, err := archive.NewFromConfig(ctx, cfg)
//	if err != nil { ... }
//	err = store.Put(ctx, "paddle/2026/10/14/evt_01.json", body, archive.WithContentType("application/json"))
//
// Keys must be relative and must not contain "..". Put overwrites existing
// objects.
package archive
