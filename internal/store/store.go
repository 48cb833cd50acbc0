// Package store provides persistence for instance configuration. All
// handler code depends on the Store interface; the SQLite implementation
// is the production backend.
package store

import (
	"context"

	"github.com/agentfront/agentfront/pkg/models"
)

// Store is the instance-configuration store. ReadInstance serves the
// request path (denormalized, defaults applied); the remaining methods
// serve the admin surface.
type Store interface {
	// ReadInstance returns the denormalized view for the request path,
	// with defaults substituted for any missing child rows. Returns
	// *ErrNotFound when the instance does not exist.
	ReadInstance(ctx context.Context, id string) (*models.InstanceView, error)

	// ListInstances returns one summary per instance, newest first.
	ListInstances(ctx context.Context) ([]models.InstanceSummary, error)

	// ReadFull returns the unjoined child rows for edit forms. Child
	// pointers are nil when the corresponding row does not exist.
	ReadFull(ctx context.Context, id string) (*models.FullInstance, error)

	// CreateInstance atomically inserts the instance row plus all child
	// rows, applying defaults for any omitted settings.
	CreateInstance(ctx context.Context, cfg *models.InstanceConfig) error

	// UpdateInstance atomically updates the instance row (refreshing
	// updated_at), replaces the domain set, and upserts the child rows.
	UpdateInstance(ctx context.Context, id string, cfg *models.InstanceConfig) error

	// DeleteInstance removes the instance row; child rows go with it via
	// the cascade policy. Deleting an absent instance is a no-op.
	DeleteInstance(ctx context.Context, id string) error

	// CloneInstance atomically copies the source instance and all of its
	// child rows under a new id and display name. Returns *ErrNotFound
	// when the source does not exist.
	CloneInstance(ctx context.Context, sourceID, newID, newName string) error

	// Ping checks if the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
