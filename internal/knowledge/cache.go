package knowledge

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// CachedStore memoizes taxonomy-filtered lookups over a backing Store. The
// evidence library is immutable during a run, so entries only go stale after
// an import; call Purge then.
type CachedStore struct {
	backing Store
	cache   *lru.Cache[string, []FailureModeRecord]
	logger  *zap.Logger
}

// NewCachedStore wraps backing with an LRU of size entries. A non-positive
// size disables caching.
func NewCachedStore(backing Store, size int, logger *zap.Logger) (*CachedStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CachedStore{backing: backing, logger: logger}
	if size > 0 {
		cache, err := lru.New[string, []FailureModeRecord](size)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// All passes through to the backing store.
func (s *CachedStore) All(ctx context.Context) ([]FailureModeRecord, error) {
	return s.backing.All(ctx)
}

// Lookup returns the records matching tax. Errors are never cached.
func (s *CachedStore) Lookup(ctx context.Context, tax Taxonomy) ([]FailureModeRecord, error) {
	key := tax.Key()
	if s.cache != nil {
		if records, ok := s.cache.Get(key); ok {
			s.logger.Debug("Knowledge cache hit", zap.String("taxonomy", key), zap.Int("records", len(records)))
			return append([]FailureModeRecord(nil), records...), nil
		}
	}

	all, err := s.backing.All(ctx)
	if err != nil {
		return nil, err
	}
	records := FilterByTaxonomy(all, tax)
	if s.cache != nil {
		s.cache.Add(key, records)
	}
	return append([]FailureModeRecord(nil), records...), nil
}

// Purge drops every cached lookup.
func (s *CachedStore) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}
