// Package blob contains adapters for the remote blob store: the object store
// that holds uploaded media bytes. Uploads are keyed by a caller-supplied
// identifier derived from the owning item, so a retried upload overwrites
// instead of duplicating.
package blob

import "context"

// Store is the minimal contract the upload pipeline needs from a blob store.
type Store interface {
	// Put uploads data under the given key and returns a stable locator for
	// the stored object. Re-uploading the same key is safe.
	Put(ctx context.Context, key string, data []byte) (string, error)
}
