package source

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/errs"
)

type fakeLoader struct {
	sources []Source
	err     error
}

func (f *fakeLoader) LoadAll(context.Context) ([]Source, error) {
	return f.sources, f.err
}

func TestRegistryGet(t *testing.T) {
	loader := &fakeLoader{sources: []Source{
		{ID: 1, Name: "Water Quality Portal", Suffix: "wqp"},
		{ID: 2, Name: "NWIS Surface Water Sites", Suffix: "nwissite"},
	}}
	reg := NewRegistry(loader, zap.NewNop())
	require.NoError(t, reg.Refresh(context.Background()))

	src, err := reg.Get("wqp")
	require.NoError(t, err)
	assert.Equal(t, 1, src.ID)

	// Suffix lookups are case-insensitive.
	src, err = reg.Get("WQP")
	require.NoError(t, err)
	assert.Equal(t, 1, src.ID)

	_, err = reg.Get("nope")
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	assert.Len(t, reg.List(), 2)
}

func TestRegistryEmptyBeforeRefresh(t *testing.T) {
	reg := NewRegistry(&fakeLoader{}, zap.NewNop())
	_, err := reg.Get("wqp")
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	assert.Empty(t, reg.List())
}

func TestRegistryRefreshError(t *testing.T) {
	loader := &fakeLoader{sources: []Source{{ID: 1, Suffix: "wqp"}}}
	reg := NewRegistry(loader, zap.NewNop())
	require.NoError(t, reg.Refresh(context.Background()))

	// A failed refresh keeps serving the previous snapshot.
	loader.err = errors.New("connection reset")
	require.Error(t, reg.Refresh(context.Background()))
	_, err := reg.Get("wqp")
	assert.NoError(t, err)
}

func TestRegistryDuplicateSuffixFirstWins(t *testing.T) {
	loader := &fakeLoader{sources: []Source{
		{ID: 1, Name: "first", Suffix: "wqp"},
		{ID: 7, Name: "second", Suffix: "WQP"},
	}}
	reg := NewRegistry(loader, zap.NewNop())
	require.NoError(t, reg.Refresh(context.Background()))

	src, err := reg.Get("wqp")
	require.NoError(t, err)
	assert.Equal(t, 1, src.ID)
	// List still carries both rows; only resolution dedupes.
	assert.Len(t, reg.List(), 2)
}

func TestRegistryConcurrentReadsDuringRefresh(t *testing.T) {
	loader := &fakeLoader{sources: []Source{{ID: 1, Suffix: "wqp"}}}
	reg := NewRegistry(loader, zap.NewNop())
	require.NoError(t, reg.Refresh(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = reg.Get("wqp")
				_ = reg.List()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		require.NoError(t, reg.Refresh(context.Background()))
	}
	wg.Wait()
}
