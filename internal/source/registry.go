package source

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/errs"
)

// Loader supplies the catalog rows the registry caches.
type Loader interface {
	LoadAll(ctx context.Context) ([]Source, error)
}

type snapshot struct {
	list     []Source
	bySuffix map[string]Source
}

// Registry is a read-mostly cache of the crawler source catalog. Lookups
// read an immutable snapshot; Refresh swaps in a new one atomically so
// readers never block.
type Registry struct {
	loader Loader
	log    *zap.Logger
	snap   atomic.Pointer[snapshot]
}

// NewRegistry builds an empty registry; call Refresh to populate it.
func NewRegistry(loader Loader, log *zap.Logger) *Registry {
	r := &Registry{loader: loader, log: log.Named("registry")}
	r.snap.Store(&snapshot{bySuffix: map[string]Source{}})
	return r
}

// Refresh reloads the catalog and swaps the snapshot. On duplicate
// suffixes the row with the lowest id wins.
func (r *Registry) Refresh(ctx context.Context) error {
	sources, err := r.loader.LoadAll(ctx)
	if err != nil {
		return err
	}

	next := &snapshot{
		list:     sources,
		bySuffix: make(map[string]Source, len(sources)),
	}
	for _, src := range sources {
		key := strings.ToLower(src.Suffix)
		if prior, dup := next.bySuffix[key]; dup {
			r.log.Warn("duplicate source suffix, keeping first",
				zap.String("suffix", key),
				zap.Int("kept", prior.ID),
				zap.Int("ignored", src.ID))
			continue
		}
		next.bySuffix[key] = src
	}

	r.snap.Store(next)
	r.log.Info("source registry refreshed", zap.Int("sources", len(sources)))
	return nil
}

// Get resolves a source by suffix, case-insensitively.
func (r *Registry) Get(suffix string) (Source, error) {
	src, ok := r.snap.Load().bySuffix[strings.ToLower(suffix)]
	if !ok {
		return Source{}, errs.NotFoundf("no such source: %s", suffix)
	}
	return src, nil
}

// List returns the catalog in id order.
func (r *Registry) List() []Source {
	return r.snap.Load().list
}
