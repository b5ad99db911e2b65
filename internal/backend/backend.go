// Package backend defines the contract the sync engine uses to reach a remote
// replica, and an Adapter implementation over any key/value object store.
package backend

import (
	"context"

	"modsync/internal/model"
)

// Adapter is the remote side of a project. GetState returns an empty state
// at version 0 for unknown projects. PutState is a compare-and-swap on
// Version and returns the newly stored version.
type Adapter interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error

	GetState(ctx context.Context, projectID string) (*model.ProjectState, error)
	PutState(ctx context.Context, state *model.ProjectState) (int64, error)

	UploadBlob(ctx context.Context, projectID, key string, data []byte) error
	DownloadBlob(ctx context.Context, projectID, key string) ([]byte, error)
	BlobURL(projectID, key string) string
	ParseBlobURL(url string) (projectID, key string, err error)

	PersistChange(ctx context.Context, change model.ProjectChange) error
	RecordSnapshot(ctx context.Context, snap model.ProjectSnapshot) error
	FetchHistory(ctx context.Context, projectID string) ([]model.ProjectSnapshot, error)

	PutInvite(ctx context.Context, invite model.Invite) error
	GetInvite(ctx context.Context, code string) (model.Invite, error)
}

// ChangeFeed is implemented by adapters that can list changes persisted by
// any collaborator. The cursor is opaque; an empty cursor returns no changes
// and a cursor positioned at the newest change.
type ChangeFeed interface {
	ChangesSince(ctx context.Context, projectID, cursor string) ([]model.ProjectChange, string, error)
}

// ObjectStore is a flat key/value blob store. Get returns an error of kind
// syncerr.KindNotFound for missing keys; List returns keys under prefix.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	URL(key string) string
	ParseURL(url string) (string, error)
}

// Connector is implemented by stores that need a handshake before use.
type Connector interface {
	Connect(ctx context.Context) error
}
