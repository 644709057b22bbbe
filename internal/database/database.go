package database

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/safeshare/safeshare/internal/model"
)

// errNotFound is the drivers' common absence sentinel.
var errNotFound = errors.New("item not found")

// stamp assigns the entry's identity and timestamps before it is persisted.
func stamp(m model.Model) {
	t := time.Now().UTC()
	m.SetUpdatedAt(t)

	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
		m.SetCreatedAt(t)
	}
}

type (
	// A Client can interacts with the database.
	Client interface {
		// Save writes the full unit for the given item, replacing any previous version.
		Save(item *model.Item) error
		// FindItem returns the item for the given id.
		FindItem(id string) (*model.Item, error)
		// Delete removes the unit for the given id.
		// Deleting a missing unit is not an error.
		Delete(id string) error
		// Walk iterates over every persisted unit. A unit that cannot be
		// decoded or verified is passed to fn with a nil item and the error,
		// so the caller decides whether to skip it.
		Walk(fn func(id string, item *model.Item, err error) error) error
		// IsNotFound returns true if err is a not found error.
		IsNotFound(err error) bool
		// Close the database.
		Close() error
	}
)
