// Package artifact owns the directory that finished downloads land in:
// safe resolution of client-supplied filenames inside it, and a live
// index of its contents for listing.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
	"github.com/volo-project/volo/pkg/logger"
)

var log = logger.Get("Artifacts")

var (
	// ErrNotFound indicates the named artifact does not exist in the
	// output directory.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidRequest indicates the supplied filename is unsafe
	// (path traversal or otherwise malformed) and was rejected before
	// any filesystem access.
	ErrInvalidRequest = errors.New("invalid artifact request")
)

type (
	// Artifact is one finished download sitting in the output directory.
	Artifact struct {
		Name       string    `json:"name"`
		SizeBytes  int64     `json:"size"`
		ModifiedAt time.Time `json:"modified_at"`
	}

	// Store confines all artifact access to a single output directory.
	// Files are never deleted or moved by the store; retention is the
	// operator's concern.
	Store struct {
		mu    sync.Mutex
		dir   string
		index map[string]Artifact
	}
)

// NewStore resolves and creates (if needed) the output directory, then
// performs an initial scan of its contents.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory '%s': %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", abs, err)
	}

	store := &Store{dir: abs, index: make(map[string]Artifact)}
	store.Refresh()
	return store, nil
}

// Run watches the output directory and keeps the artifact index in sync
// with it, until the context is cancelled. A failing watch degrades to a
// stale-but-functional index rather than taking the service down.
func (store *Store) Run(ctx context.Context) error {
	events := make(chan notify.EventInfo, 16)
	if err := notify.Watch(store.dir, events, notify.Create, notify.Remove, notify.Rename); err != nil {
		log.Warnf("Failed to watch output directory '%s': %s. Artifact index will not self-refresh.\n", store.dir, err.Error())
		<-ctx.Done()
		return nil
	}
	defer notify.Stop(events)

	log.Infof("Watching output directory %s\n", store.dir)
	for {
		select {
		case <-events:
			store.Refresh()
		case <-ctx.Done():
			return nil
		}
	}
}

// Refresh rescans the output directory and rebuilds the index.
func (store *Store) Refresh() {
	entries, err := os.ReadDir(store.dir)
	if err != nil {
		log.Errorf("Failed to scan output directory '%s': %s\n", store.dir, err.Error())
		return
	}

	index := make(map[string]Artifact, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		index[entry.Name()] = Artifact{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		}
	}

	store.mu.Lock()
	store.index = index
	store.mu.Unlock()
}

// Dir returns the absolute path of the output directory.
func (store *Store) Dir() string {
	return store.dir
}

// All returns the indexed artifacts, ordered by name.
func (store *Store) All() []Artifact {
	store.mu.Lock()
	artifacts := make([]Artifact, 0, len(store.index))
	for _, artifact := range store.index {
		artifacts = append(artifacts, artifact)
	}
	store.mu.Unlock()

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts
}

// Resolve maps a client-supplied filename on to an absolute path inside
// the output directory. Unsafe names are rejected with ErrInvalidRequest
// BEFORE any filesystem access; names that pass the check but do not
// exist yield ErrNotFound.
func (store *Store) Resolve(filename string) (string, error) {
	if err := validateName(filename); err != nil {
		return "", err
	}

	path := filepath.Join(store.dir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: '%s'", ErrNotFound, filename)
	}

	return path, nil
}

// validateName enforces that the filename is a single, plain path
// element. Anything that could step outside the output directory after
// joining (separators, traversal segments, empty names) is rejected.
func validateName(filename string) error {
	switch {
	case filename == "", filename == ".", filename == "..":
		return fmt.Errorf("%w: empty or relative filename", ErrInvalidRequest)
	case strings.ContainsAny(filename, `/\`):
		return fmt.Errorf("%w: filename must not contain path separators", ErrInvalidRequest)
	case filename != filepath.Base(filepath.Clean(filename)):
		return fmt.Errorf("%w: filename must be a single path element", ErrInvalidRequest)
	}

	return nil
}

// MediaType guesses the content type to serve an artifact with, based
// on its extension. Unknown containers fall back to a generic stream.
func MediaType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
