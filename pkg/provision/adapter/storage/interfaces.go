// Package storage defines the common interfaces for object storage adapters.
// Batch reports are written through these interfaces to a local directory or a
// GCS bucket.
package storage

import (
	"context"
	"io"
)

// StorageProviderGroup is the fx group StorageProviders are collected from.
const StorageProviderGroup = "storage_providers"

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload uploads data to the specified bucket and object name.
	// An empty bucket uses the connection's configured bucket.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download returns a ReadCloser which must be closed by the caller after use.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is one named storage connection.
type StorageConnection interface {
	StorageExecutor
	Name() string
	Type() string
	Close() error
}

// StorageProvider manages the connections of one storage type.
type StorageProvider interface {
	// Type returns the storage type handled by this provider (e.g., "local", "gcs").
	Type() string
	// GetConnection returns the named connection, creating it on first use.
	GetConnection(name string) (StorageConnection, error)
	// ForceReconnect closes and re-creates the named connection.
	ForceReconnect(name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
}

// StorageConnectionResolver resolves storage connections by name across providers.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}
