// Package cache stores rendered diagram artifacts on disk.
//
// The cache is keyed by content [identity.Identity] and holds nothing but
// files named "<identity>.<format>" in a single directory. An entry exists if
// and only if its file exists: there is no index, no metadata and no expiry.
// Since an identity depends only on diagram source, an existing file is by
// construction the render of that source and can be reused as-is.
//
// # Writes
//
// [FileStore.Ensure] renders on a miss into a private scratch directory
// inside the cache directory, then moves the produced file to its final name
// with a single rename. Concurrent processes rendering the same diagram race
// only on that rename and both leave a complete file behind, so the store
// needs no locks. A failed render leaves no entry and the next call retries.
//
// # Implementations
//
//   - [FileStore]: the disk store used by every command
//   - [Refresh]: a FileStore wrapper that ignores existing entries, used by
//     "render --force"
package cache

import (
	"context"

	"github.com/matzehuels/pumlbook/pkg/identity"
	"github.com/matzehuels/pumlbook/pkg/render"
)

// Store resolves render targets to artifact files.
type Store interface {
	// Ensure returns the path of the artifact for t, rendering it with gw
	// when it does not exist yet. hit reports whether the file was reused.
	Ensure(ctx context.Context, t render.Target, gw render.Gateway) (path string, hit bool, err error)

	// Path returns where the artifact for id would live. It does not check
	// that the file exists.
	Path(id identity.Identity, format string) string

	// Read returns the contents of an artifact returned by Ensure.
	Read(path string) ([]byte, error)

	// Dir returns the cache directory.
	Dir() string
}
