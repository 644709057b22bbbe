package store_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/safeshare/safeshare/internal/database"
	"github.com/safeshare/safeshare/internal/model"
	"github.com/safeshare/safeshare/internal/sserror"
	"github.com/safeshare/safeshare/internal/store"
	"github.com/stretchr/testify/assert"
)

func setup(t *testing.T) (*store.Store, database.Client, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.FSOpen(dir)
	if err != nil {
		panic(err)
	}
	return store.New(db), db, dir
}

func TestStorePut(t *testing.T) {
	s, db, _ := setup(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := s.Put([]byte("ciphertext"), "notes.txt", false, 3)
		assert.NoError(t, err)
		assert.False(t, seen[id], "id must never be reissued")
		seen[id] = true
	}

	id, err := s.Put([]byte("ciphertext"), "notes.txt", true, 1)
	assert.NoError(t, err)

	item, err := db.FindItem(id)
	assert.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), item.Payload)
	assert.Equal(t, "notes.txt", item.Name)
	assert.True(t, item.Text)
	assert.Equal(t, 1, item.DownloadLimit)
	assert.Equal(t, 0, item.Downloads)
	assert.WithinDuration(t, time.Now(), *item.CreatedAt, 2*time.Second)
}

func TestStorePutValidation(t *testing.T) {
	s, _, _ := setup(t)

	_, err := s.Put(nil, "notes.txt", false, 3)
	assert.Equal(t, sserror.TagPayloadRequired, sserror.Tag(err))

	for _, limit := range []int{-1, 0, 101, 1000} {
		_, err := s.Put([]byte("ciphertext"), "notes.txt", false, limit)
		assert.Equal(t, sserror.TagInvalidLimit, sserror.Tag(err), "limit %d", limit)
	}
}

func TestStorePeek(t *testing.T) {
	s, _, _ := setup(t)

	_, err := s.Peek("cf0baa0f-e335-4ba0-a384-ac3464163dbb")
	assert.Equal(t, sserror.TagNotFound, sserror.Tag(err))

	id, err := s.Put([]byte("ciphertext"), "notes.txt", false, 2)
	assert.NoError(t, err)

	for i := 0; i < 3; i++ { // side-effect free, repeatable
		item, err := s.Peek(id)
		assert.NoError(t, err)
		assert.Nil(t, item.Payload, "peek must never expose the payload")
		assert.Equal(t, 0, item.Downloads)
		assert.Equal(t, 2, item.DownloadLimit)
		assert.Equal(t, 2, item.Remaining())
	}
}

func TestStoreInvalidID(t *testing.T) {
	s, _, _ := setup(t)

	for _, id := range []string{
		"",
		"not-an-uuid",
		"../../etc/passwd",
		"cf0baa0fe3354ba0a384ac3464163dbb",       // non-canonical rendering
		"{cf0baa0f-e335-4ba0-a384-ac3464163dbb}", // braced form
		"urn:uuid:cf0baa0f-e335-4ba0-a384-ac3464163dbb", // URN form
	} {
		_, err := s.Peek(id)
		assert.Equal(t, sserror.TagInvalidID, sserror.Tag(err), "peek %q", id)

		_, _, err = s.Consume(id)
		assert.Equal(t, sserror.TagInvalidID, sserror.Tag(err), "consume %q", id)
	}
}

func TestStoreConsumeLifecycle(t *testing.T) {
	s, db, _ := setup(t)

	id, err := s.Put([]byte("ciphertext"), "notes.txt", false, 2)
	assert.NoError(t, err)

	item, last, err := s.Consume(id)
	assert.NoError(t, err)
	assert.False(t, last)
	assert.Equal(t, []byte("ciphertext"), item.Payload)
	assert.Equal(t, 1, item.Downloads)

	snapshot, err := s.Peek(id)
	assert.NoError(t, err)
	assert.Equal(t, 1, snapshot.Remaining())

	item, last, err = s.Consume(id)
	assert.NoError(t, err)
	assert.True(t, last)
	assert.Equal(t, []byte("ciphertext"), item.Payload)
	assert.Equal(t, 2, item.Downloads)

	// The record is gone from both the index and the backing store.
	_, _, err = s.Consume(id)
	assert.Equal(t, sserror.TagNotFound, sserror.Tag(err))
	_, err = s.Peek(id)
	assert.Equal(t, sserror.TagNotFound, sserror.Tag(err))
	_, err = db.FindItem(id)
	assert.True(t, db.IsNotFound(err))
}

func TestStoreConsumeSingleDownload(t *testing.T) {
	s, db, _ := setup(t)

	id, err := s.Put([]byte("ciphertext"), "notes.txt", false, 1)
	assert.NoError(t, err)

	item, last, err := s.Consume(id)
	assert.NoError(t, err)
	assert.True(t, last)
	assert.Equal(t, []byte("ciphertext"), item.Payload)

	_, err = db.FindItem(id)
	assert.True(t, db.IsNotFound(err))
}

func TestStoreSelfHealsExhaustedResidue(t *testing.T) {
	s, db, _ := setup(t)

	// Simulate a crash between the final increment's persist and the
	// terminal deletion: the unit is present but already exhausted.
	id, err := s.Put([]byte("ciphertext"), "notes.txt", false, 2)
	assert.NoError(t, err)

	item, err := db.FindItem(id)
	assert.NoError(t, err)
	item.Downloads = item.DownloadLimit
	assert.NoError(t, db.Save(item))

	fresh := store.New(db)
	assert.NoError(t, fresh.Load())

	_, err = fresh.Peek(id)
	assert.Equal(t, sserror.TagExhausted, sserror.Tag(err))

	_, _, err = fresh.Consume(id)
	assert.Equal(t, sserror.TagExhausted, sserror.Tag(err))

	// The consume above cleaned up the residue.
	_, err = db.FindItem(id)
	assert.True(t, db.IsNotFound(err))
	_, _, err = fresh.Consume(id)
	assert.Equal(t, sserror.TagNotFound, sserror.Tag(err))
}

func TestStoreRehydration(t *testing.T) {
	s, db, _ := setup(t)

	live := map[string]int{}
	for i := 1; i <= 5; i++ {
		id, err := s.Put([]byte(fmt.Sprintf("ciphertext-%d", i)), "notes.txt", false, i)
		assert.NoError(t, err)
		live[id] = i
	}

	// Consume one id to completion and another partially.
	var gone string
	for id, limit := range live {
		if limit == 1 {
			_, _, err := s.Consume(id)
			assert.NoError(t, err)
			gone = id
		}
		if limit == 3 {
			_, _, err := s.Consume(id)
			assert.NoError(t, err)
		}
	}
	delete(live, gone)

	// Discard the index and rehydrate from the backing store.
	fresh := store.New(db)
	assert.NoError(t, fresh.Load())

	for id, limit := range live {
		item, err := fresh.Peek(id)
		assert.NoError(t, err)
		assert.Equal(t, limit, item.DownloadLimit)
		if limit == 3 {
			assert.Equal(t, 1, item.Downloads)
		} else {
			assert.Equal(t, 0, item.Downloads)
		}
	}

	_, err := fresh.Peek(gone)
	assert.Equal(t, sserror.TagNotFound, sserror.Tag(err))
}

func TestStoreLazyRehydration(t *testing.T) {
	s, db, _ := setup(t)

	id, err := s.Put([]byte("ciphertext"), "notes.txt", false, 2)
	assert.NoError(t, err)

	// A fresh store without Load still finds the unit on first access.
	fresh := store.New(db)
	item, err := fresh.Peek(id)
	assert.NoError(t, err)
	assert.Equal(t, 2, item.DownloadLimit)
}

func TestStoreLoadSkipsCorruptUnits(t *testing.T) {
	s, db, dir := setup(t)

	id, err := s.Put([]byte("ciphertext"), "notes.txt", false, 2)
	assert.NoError(t, err)

	err = writeGarbageUnit(dir, "11111111-2222-3333-4444-555555555555")
	assert.NoError(t, err)

	fresh := store.New(db)
	assert.NoError(t, fresh.Load(), "corrupt units must never abort startup")

	item, err := fresh.Peek(id)
	assert.NoError(t, err)
	assert.Equal(t, 2, item.DownloadLimit)
}

// breakableClient fails Save on demand to exercise persistence error paths.
type breakableClient struct {
	database.Client
	failSave bool
}

func (c *breakableClient) Save(item *model.Item) error {
	if c.failSave {
		return errors.New("disk full")
	}
	return c.Client.Save(item)
}

func TestStorePutPersistFailure(t *testing.T) {
	_, db, _ := setup(t)
	broken := &breakableClient{Client: db}
	s := store.New(broken)

	broken.failSave = true
	_, err := s.Put([]byte("ciphertext"), "notes.txt", false, 2)
	assert.Error(t, err)

	// No dangling in-memory-only entry and nothing persisted.
	broken.failSave = false
	count := 0
	assert.NoError(t, db.Walk(func(string, *model.Item, error) error {
		count++
		return nil
	}))
	assert.Zero(t, count)
}

func TestStoreConsumePersistFailure(t *testing.T) {
	_, db, _ := setup(t)
	broken := &breakableClient{Client: db}
	s := store.New(broken)

	id, err := s.Put([]byte("ciphertext"), "notes.txt", false, 2)
	assert.NoError(t, err)

	before, err := s.Peek(id)
	assert.NoError(t, err)

	broken.failSave = true
	_, _, err = s.Consume(id)
	assert.Error(t, err)
	assert.Empty(t, sserror.Tag(err), "a persistence failure is not a lifecycle signal")

	// The failed consumption granted nothing and left no trace.
	broken.failSave = false
	after, err := s.Peek(id)
	assert.NoError(t, err)
	assert.Equal(t, 0, after.Downloads)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	item, last, err := s.Consume(id)
	assert.NoError(t, err)
	assert.False(t, last)
	assert.Equal(t, 1, item.Downloads)
}

func writeGarbageUnit(dir, id string) error {
	return os.WriteFile(filepath.Join(dir, id+".mp"), []byte{0x00, 0xff, 0x13, 0x37}, 0o600)
}

func TestStoreConcurrentConsume(t *testing.T) {
	s, _, _ := setup(t)

	const limit = 10
	const callers = 25

	id, err := s.Put([]byte("ciphertext"), "notes.txt", false, limit)
	assert.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan bool, callers)
	lasts := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, last, err := s.Consume(id)
			if err != nil {
				results <- false
				return
			}
			results <- true
			lasts <- last
			assert.Equal(t, []byte("ciphertext"), item.Payload)
		}()
	}
	wg.Wait()
	close(results)
	close(lasts)

	successes := 0
	for ok := range results {
		if ok {
			successes++
		}
	}
	assert.Equal(t, limit, successes, "exactly limit consumptions must succeed")

	lastCount := 0
	for last := range lasts {
		if last {
			lastCount++
		}
	}
	assert.Equal(t, 1, lastCount, "exactly one consumption is the last one")

	_, err = s.Peek(id)
	assert.NotNil(t, err)
}
