package cache

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/identity"
	"github.com/matzehuels/pumlbook/pkg/observability"
	"github.com/matzehuels/pumlbook/pkg/render"
)

// scratchPattern names the per-render scratch directories.
const scratchPattern = ".render-*"

// FileStore is a directory of artifacts named "<identity>.<format>".
type FileStore struct {
	dir string
}

// Entry describes one cached artifact.
type Entry struct {
	Name    string
	ID      identity.Identity
	Format  string
	Size    int64
	ModTime time.Time
}

// Prepare creates dir if needed and opens a store on it.
// This is the one cache failure that should stop the caller.
func Prepare(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeOutputDir, err, "create cache directory %s", dir)
	}
	return NewFileStore(dir)
}

// NewFileStore opens a store on an existing directory.
func NewFileStore(dir string) (*FileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeOutputDir, err, "cache directory %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeOutputDir, "cache path %s is not a directory", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the artifact path for id in the given format.
func (s *FileStore) Path(id identity.Identity, format string) string {
	return filepath.Join(s.dir, id.Filename(format))
}

// Lookup returns the artifact path for id and whether the file exists.
func (s *FileStore) Lookup(id identity.Identity, format string) (string, bool) {
	path := s.Path(id, format)
	info, err := os.Stat(path)
	return path, err == nil && info.Mode().IsRegular()
}

// Ensure implements Store.
func (s *FileStore) Ensure(ctx context.Context, t render.Target, gw render.Gateway) (string, bool, error) {
	if path, ok := s.Lookup(t.ID, t.Format); ok {
		observability.Cache().OnCacheHit(ctx, t.Format)
		return path, true, nil
	}
	observability.Cache().OnCacheMiss(ctx, t.Format)

	path, err := s.store(ctx, t, gw)
	return path, false, err
}

// store renders t into a scratch directory and moves the result into place.
func (s *FileStore) store(ctx context.Context, t render.Target, gw render.Gateway) (string, error) {
	scratch, err := os.MkdirTemp(s.dir, scratchPattern)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeOutputDir, err, "create scratch directory in %s", s.dir)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.FromContext(ctx).Warn("failed to remove scratch directory", "dir", scratch, "error", err)
		}
	}()

	produced, err := gw.Render(ctx, t, scratch)
	if err != nil {
		return "", err
	}
	if filepath.Dir(filepath.Clean(produced)) != filepath.Clean(scratch) {
		return "", errors.New(errors.ErrCodeArtifactMissing, "renderer reported %s outside its scratch directory", produced)
	}

	final := s.Path(t.ID, t.Format)
	if err := os.Rename(produced, final); err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrap(errors.ErrCodeArtifactMissing, err, "renderer reported %s", produced)
		}
		return "", errors.Wrap(errors.ErrCodeInternal, err, "store artifact %s", filepath.Base(final))
	}

	var size int64
	if info, err := os.Stat(final); err == nil {
		size = info.Size()
	}
	observability.Cache().OnCacheSet(ctx, t.Format, size)
	return final, nil
}

// Read returns the contents of an artifact.
func (s *FileStore) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeArtifactMissing, err, "artifact %s", filepath.Base(path))
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read artifact %s", filepath.Base(path))
	}
	return data, nil
}

// Artifact resolves an artifact file name, as served over HTTP, to a path.
func (s *FileStore) Artifact(name string) (string, error) {
	if err := errors.ValidateArtifactName(name); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", errors.New(errors.ErrCodeArtifactMissing, "artifact %s not found", name)
	}
	return path, nil
}

// List returns the cached artifacts sorted by name. Files that are not
// named after an identity are ignored.
func (s *FileStore) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeOutputDir, err, "read cache directory %s", s.dir)
	}

	var entries []Entry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		entry, ok := parseEntry(d.Name())
		if !ok {
			continue
		}
		if info, err := d.Info(); err == nil {
			entry.Size = info.Size()
			entry.ModTime = info.ModTime()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Clear removes every artifact and any scratch directory left behind by an
// interrupted render. It returns the number of artifacts removed.
func (s *FileStore) Clear() (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, e := range entries {
		if err := os.Remove(filepath.Join(s.dir, e.Name)); err == nil {
			count++
		}
	}

	scratch, _ := filepath.Glob(filepath.Join(s.dir, scratchPattern))
	for _, dir := range scratch {
		_ = os.RemoveAll(dir)
	}
	return count, nil
}

func parseEntry(name string) (Entry, bool) {
	stem, format, ok := strings.Cut(name, ".")
	if !ok || format == "" {
		return Entry{}, false
	}
	id, err := identity.Parse(stem)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Name: name, ID: id, Format: format}, true
}

var _ Store = (*FileStore)(nil)
