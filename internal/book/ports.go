package book

import (
	"context"
	"io"

	"collecthive/internal/platform/openlibrary"
)

//go:generate mockgen -source=ports.go -destination=mock_ports_test.go -package=book

// Repository defines the contract for book data storage.
type Repository interface {
	FindByISBN(ctx context.Context, isbn string) (Book, error)
	Insert(ctx context.Context, book *Book) (string, error)
	UpdateByISBN(ctx context.Context, isbn string, book Book) (int64, error)
	DeleteByISBN(ctx context.Context, isbn string) (int64, error)
	List(ctx context.Context) ([]Book, error)
	Ping(ctx context.Context) error
}

// MetadataFetcher looks up edition metadata by canonical ISBN.
type MetadataFetcher interface {
	LookupISBN(ctx context.Context, isbn string) (*openlibrary.Edition, error)
}

// CoverStorage persists an uploaded image and returns its public URL. Remove
// is a no-op for keys that were never stored.
type CoverStorage interface {
	Store(ctx context.Context, key string, content io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}
