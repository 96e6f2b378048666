package cache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/terisuke/cohort/internal/model"
)

// Store is the two-tier cache for fetched account data: an ephemeral
// per-run overlay consulted first, backed by a durable on-disk tier.
// It is the single source of truth for "have we already fetched this
// identity". Entries are mutated only through Put/Invalidate; the one
// permitted in-place mutation is the quality-score backfill.
type Store struct {
	overlay Cache
	durable Cache
	log     logrus.FieldLogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-key write locks for backfill
}

// NewStore creates a store with a fresh overlay over the durable tier.
func NewStore(overlay, durable Cache, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		overlay: overlay,
		durable: durable,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

// NewDefaultStore creates a store over a memory overlay and a disk
// durable tier rooted at dir.
func NewDefaultStore(dir string, log logrus.FieldLogger) *Store {
	return NewStore(NewMemoryCache(0, 0), NewDiskCache(dir), log)
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Get returns the cached entry for an identity, overlay first, then
// durable; a durable hit populates the overlay. Contaminated entries
// (synthetic lead post) are invalidated on read and reported as a
// miss, forcing a genuine re-fetch.
func (s *Store) Get(identity string) (*model.CacheEntry, bool) {
	key := Key(identity)

	data, found := s.overlay.Get(key)
	if !found {
		data, found = s.durable.Get(key)
		if !found {
			return nil, false
		}
		_ = s.overlay.Set(key, data)
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.log.WithField("identity", identity).WithError(err).Warn("malformed cache entry, invalidating")
		_ = s.Invalidate(identity)
		return nil, false
	}
	if entry.Identity == "" {
		entry.Identity = model.NormalizeHandle(identity)
	}

	if entry.Contaminated() {
		s.log.WithField("identity", identity).Warn("synthetic content detected in cache, invalidating")
		_ = s.Invalidate(identity)
		return nil, false
	}

	return &entry, true
}

// Put writes the entry to both tiers.
func (s *Store) Put(identity string, entry *model.CacheEntry) error {
	key := Key(identity)

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.overlay.Set(key, data); err != nil {
		return err
	}
	if err := s.durable.Set(key, data); err != nil {
		return fmt.Errorf("persist cache entry: %w", err)
	}
	s.log.WithField("identity", identity).Debug("cache entry saved")
	return nil
}

// Invalidate removes an identity from both tiers.
func (s *Store) Invalidate(identity string) error {
	key := Key(identity)
	_ = s.overlay.Delete(key)
	return s.durable.Delete(key)
}

// ListKeys enumerates durable-tier keys, used to rebuild the working
// set from disk at startup.
func (s *Store) ListKeys() []string {
	return s.durable.Keys(KeyPrefix)
}

// Identities returns the identities present in the durable tier.
func (s *Store) Identities() []string {
	keys := s.ListKeys()
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, IdentityFromKey(k))
	}
	return ids
}

// ClearOverlay drops the ephemeral tier, e.g. on session reset.
func (s *Store) ClearOverlay() {
	_ = s.overlay.Clear()
}

// QualityScorer computes a quality score and reasons for an entry.
// Implemented by the quality gate; declared here so backfill does not
// depend on the gate package.
type QualityScorer interface {
	ScoreEntry(entry *model.CacheEntry) (score float64, provisional bool, reasons []string)
}

// BackfillQuality attaches a quality score to a cached entry whose
// persona lacks one and rewrites the entry. This is the only in-place
// mutation the store permits; computing the score twice yields the
// same entry. Returns true when the entry was updated.
func (s *Store) BackfillQuality(identity string, scorer QualityScorer) (bool, error) {
	entry, found := s.Get(identity)
	if !found {
		return false, nil
	}
	if entry.Persona == nil || entry.Persona.QualityScore != nil {
		return false, nil
	}

	score, provisional, reasons := scorer.ScoreEntry(entry)
	entry.Persona.QualityScore = &score
	entry.Persona.QualityReasons = reasons
	entry.Persona.Provisional = provisional

	if err := s.Put(identity, entry); err != nil {
		return false, fmt.Errorf("backfill quality score: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"identity":    identity,
		"score":       score,
		"provisional": provisional,
	}).Info("quality score backfilled")
	return true, nil
}
