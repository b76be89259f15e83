package book

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a book is not found.
	ErrNotFound = errors.New("book not found")
	// ErrDuplicateISBN is returned when another book already uses the ISBN.
	ErrDuplicateISBN = errors.New("ISBN already exists")
)

// Status tells whether a book is on the shelf or only wanted.
type Status string

const (
	StatusInStock  Status = "in_stock"
	StatusWishlist Status = "wishlist"
)

func (s Status) Valid() bool {
	return s == StatusInStock || s == StatusWishlist
}

// Book represents one catalog entry.
type Book struct {
	ID          string    `json:"id"`
	ISBN        string    `json:"isbn"`
	Title       string    `json:"title"`
	Subtitle    *string   `json:"subtitle"`
	Authors     []string  `json:"authors"`
	Description *string   `json:"description"`
	Edition     string    `json:"edition"`
	Cover       *string   `json:"cover"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// New returns a book carrying the record defaults.
func New(isbn string) Book {
	return Book{
		ISBN:    isbn,
		Authors: []string{},
		Status:  StatusInStock,
	}
}

func (b *Book) applyDefaults() {
	if b.Authors == nil {
		b.Authors = []string{}
	}
	if b.Status == "" {
		b.Status = StatusInStock
	}
}

// ValidationErrors maps a form field to a single human readable message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = field + ": " + v[field]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// LookupError wraps a failed metadata lookup.
type LookupError struct {
	ISBN string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("could not fetch metadata for ISBN %s: %v", e.ISBN, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// CoverUpload is an image submitted alongside a book form.
type CoverUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
