// Package store implements the ephemeral, download-limited blob store.
// It owns the in-memory index; the database client is a write-through
// mirror used for rehydration after a restart.
package store

import (
	"sync"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/safeshare/safeshare/internal/database"
	"github.com/safeshare/safeshare/internal/model"
	"github.com/safeshare/safeshare/internal/sserror"
	"github.com/sirupsen/logrus"
)

// Download limit bounds accepted at creation.
const (
	MinDownloadLimit = 1
	MaxDownloadLimit = 100
)

// A Store holds the live items and keeps the backing database consistent
// with the index after every mutation. A single mutex serializes the
// check/increment/persist/destroy sequence so concurrent consumptions of
// the same id can never double-count or resurrect a destroyed record.
type Store struct {
	mu    sync.Mutex
	db    database.Client
	index map[string]*model.Item
}

// New returns an empty store backed by db. Call Load before serving
// traffic to rehydrate the index from a previous run.
func New(db database.Client) *Store {
	return &Store{
		db:    db,
		index: make(map[string]*model.Item),
	}
}

// Load populates the index from the backing database. A unit that cannot
// be read back is logged and skipped; it never prevents the rest of the
// store from coming online.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	err := s.db.Walk(func(id string, item *model.Item, err error) error {
		if err != nil {
			logrus.WithError(err).WithField("unit", id).Warn("skipping unreadable unit")
			return nil
		}
		s.index[item.ID] = item
		loaded++
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "could not rehydrate index")
	}

	logrus.Infof("Loaded %d existing items", loaded)
	return nil
}

// Put stores the already-encrypted payload and returns the new item's handle.
// Caller errors (empty payload, out-of-bounds limit) are rejected before any
// state change. A failed persist leaves no in-memory entry so the store never
// reports success for a record it failed to mirror.
func (s *Store) Put(payload []byte, name string, text bool, limit int) (string, error) {
	if len(payload) == 0 {
		return "", sserror.PayloadRequired()
	}
	if limit < MinDownloadLimit || limit > MaxDownloadLimit {
		return "", sserror.InvalidLimit()
	}

	item := &model.Item{
		Payload:       payload,
		Name:          SanitizeName(name),
		Text:          text,
		DownloadLimit: limit,
	}
	item.Seal()

	s.mu.Lock()
	defer s.mu.Unlock()

	// The driver assigns the id and timestamps; the item only becomes
	// observable once its unit is durably persisted.
	if err := s.db.Save(item); err != nil {
		return "", errors.Wrap(err, "could not persist item")
	}
	s.index[item.ID] = item
	return item.ID, nil
}

// Peek returns a payload-free snapshot of the item without counting a
// download. It is side-effect free apart from the lazy rehydration of an
// index miss.
func (s *Store) Peek(id string) (*model.Item, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if item.Exhausted() {
		return nil, sserror.Exhausted()
	}
	return item.Snapshot(), nil
}

// Consume counts a download and returns a copy of the item, payload
// included, plus a flag telling whether this consumption was the last one.
// The incremented count is persisted before the payload is released; when
// the limit is reached the record is destroyed in the same step, after the
// response data has been captured.
func (s *Store) Consume(id string) (*model.Item, bool, error) {
	if err := validateID(id); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.lookup(id)
	if err != nil {
		return nil, false, err
	}

	if item.Exhausted() {
		// Residue of a crash between the final increment and its terminal
		// deletion. Self-heal and report the record gone.
		if err := s.destroy(id); err != nil {
			return nil, false, err
		}
		return nil, false, sserror.Exhausted()
	}

	item.Downloads++
	updated := item.UpdatedAt
	if err := s.db.Save(item); err != nil {
		item.Downloads--
		item.UpdatedAt = updated
		return nil, false, errors.Wrap(err, "could not persist download count")
	}

	last := item.Downloads == item.DownloadLimit
	consumed := *item
	if last {
		if err := s.destroy(id); err != nil {
			// The count is already persisted: the unit is exhausted on disk
			// and the next access will self-heal, never re-grant a download.
			logrus.WithError(err).WithField("id", id).Error("could not destroy exhausted item")
		}
	}
	return &consumed, last, nil
}

// lookup fetches the item from the index, falling back once to the backing
// database (lazy rehydration). Must be called with the lock held.
func (s *Store) lookup(id string) (*model.Item, error) {
	if item, ok := s.index[id]; ok {
		return item, nil
	}

	item, err := s.db.FindItem(id)
	if err != nil {
		if s.db.IsNotFound(err) {
			return nil, sserror.NotFound()
		}
		return nil, errors.Wrap(err, "could not load item")
	}
	s.index[id] = item
	return item, nil
}

// destroy removes the item from the index and the backing database.
// Must be called with the lock held.
func (s *Store) destroy(id string) error {
	delete(s.index, id)
	return errors.Wrap(s.db.Delete(id), "could not delete item")
}

// validateID rejects handles that do not have the canonical UUID shape
// before they can reach the index or the backing database's file naming.
func validateID(id string) error {
	u, err := uuid.FromString(id)
	if err != nil || u.String() != id {
		return sserror.InvalidID()
	}
	return nil
}
