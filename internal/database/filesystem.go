package database

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/safeshare/safeshare/internal/model"
	"github.com/vmihailenco/msgpack"
)

// unitExt is the filename extension of a persisted unit.
const unitExt = ".mp"

type fsdb struct {
	dir string
}

// FSOpen returns a new filesystem-backed database rooted at dir.
// Each item is persisted as a self-contained msgpack unit named after its id,
// so point lookups never need a directory listing.
func FSOpen(dir string) (Client, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create database directory")
	}

	return &fsdb{
		dir: dir,
	}, nil
}

// Save writes the full unit for the given item, replacing any previous version.
// The unit is written to a temporary sibling and atomically renamed into place
// so rehydration never observes a half-written unit.
func (c *fsdb) Save(item *model.Item) error {
	stamp(item)

	payload, err := msgpack.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "could not encode item")
	}

	unit := c.path(item.ID)
	tmp := unit + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return errors.Wrap(err, "could not write unit")
	}
	return errors.Wrap(os.Rename(tmp, unit), "could not replace unit")
}

// FindItem returns the item for the given id.
func (c *fsdb) FindItem(id string) (*model.Item, error) {
	payload, err := os.ReadFile(c.path(id))
	if os.IsNotExist(err) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not read unit")
	}

	return decode(payload)
}

// Delete removes the unit for the given id. Deleting a missing unit is not an error.
func (c *fsdb) Delete(id string) error {
	err := os.Remove(c.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(err, "could not delete unit")
}

// Walk iterates over every persisted unit.
func (c *fsdb) Walk(fn func(id string, item *model.Item, err error) error) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return errors.Wrap(err, "could not list units")
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), unitExt) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), unitExt)

		payload, err := os.ReadFile(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			err = fn(id, nil, errors.Wrap(err, "could not read unit"))
		} else {
			var item *model.Item
			item, err = decode(payload)
			err = fn(id, item, err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// IsNotFound returns true if err is a not found error.
func (c *fsdb) IsNotFound(err error) bool {
	return errors.Cause(err) == errNotFound
}

// Close the database.
func (c *fsdb) Close() error {
	return nil
}

// path maps an id to its unit filename. Ids are validated as canonical UUIDs
// before they reach the driver, so no path components can be injected here.
func (c *fsdb) path(id string) string {
	return filepath.Join(c.dir, id+unitExt)
}

func decode(payload []byte) (*model.Item, error) {
	var item model.Item
	if err := msgpack.Unmarshal(payload, &item); err != nil {
		return nil, errors.Wrap(err, "could not decode unit")
	}
	if err := item.Verify(); err != nil {
		return nil, errors.Wrap(err, "corrupted unit")
	}
	return &item, nil
}
