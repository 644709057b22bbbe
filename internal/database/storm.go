package database

import (
	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/codec/msgpack"
	"github.com/pkg/errors"
	"github.com/safeshare/safeshare/internal/model"
)

type strm struct {
	db *storm.DB
}

// StormCodec is the format used to store data in the database.
var StormCodec = storm.Codec(msgpack.Codec)

// StormOpen returns a new Storm database connection.
// All items live in a single bbolt file rather than one unit per record.
func StormOpen(database string) (Client, error) {
	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return nil, errors.Wrap(err, "could not get database connection")
	}

	if err := db.Init(&model.Item{}); err != nil {
		return nil, errors.Wrap(err, "could not init item index")
	}

	return &strm{
		db: db,
	}, nil
}

// Save writes the full unit for the given item, replacing any previous version.
func (c *strm) Save(item *model.Item) error {
	stamp(item)
	return errors.Wrap(c.db.Save(item), "could not save the item")
}

// FindItem returns the item for the given id.
func (c *strm) FindItem(id string) (*model.Item, error) {
	var item model.Item
	if err := c.db.One("ID", id, &item); err != nil {
		if err == storm.ErrNotFound {
			return nil, errNotFound
		}
		return nil, errors.Wrap(err, "could not find item")
	}
	if err := item.Verify(); err != nil {
		return nil, errors.Wrap(err, "corrupted item")
	}
	return &item, nil
}

// Delete removes the item for the given id. Deleting a missing item is not an error.
func (c *strm) Delete(id string) error {
	err := c.db.DeleteStruct(&model.Item{Base: model.Base{ID: id}})
	if err == storm.ErrNotFound {
		return nil
	}
	return errors.Wrap(err, "could not delete item")
}

// Walk iterates over every persisted item.
func (c *strm) Walk(fn func(id string, item *model.Item, err error) error) error {
	items := make([]*model.Item, 0)
	if err := c.db.All(&items); err != nil {
		return errors.Wrap(err, "could not list items")
	}

	for _, item := range items {
		if verr := item.Verify(); verr != nil {
			if err := fn(item.ID, nil, errors.Wrap(verr, "corrupted item")); err != nil {
				return err
			}
			continue
		}
		if err := fn(item.ID, item, nil); err != nil {
			return err
		}
	}
	return nil
}

// IsNotFound returns true if err is a not found error.
func (c *strm) IsNotFound(err error) bool {
	return errors.Cause(err) == errNotFound || errors.Cause(err) == storm.ErrNotFound
}

// Close the database.
func (c *strm) Close() error {
	return c.db.Close()
}
