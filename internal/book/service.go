package book

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"collecthive/internal/cover"
	"collecthive/internal/isbn"
	"collecthive/internal/pagination"

	"github.com/rs/zerolog/log"
)

const coverField = "coverFile"

// Service provides book-related business logic.
type Service struct {
	repo     Repository
	fetcher  MetadataFetcher
	covers   CoverStorage
	pageSize int
}

// NewService creates a new book service.
func NewService(repo Repository, fetcher MetadataFetcher, covers CoverStorage, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	return &Service{repo: repo, fetcher: fetcher, covers: covers, pageSize: pageSize}
}

// List returns one page of the catalog in insertion order.
func (s *Service) List(ctx context.Context, page int) (pagination.Page[Book], error) {
	books, err := s.repo.List(ctx)
	if err != nil {
		return pagination.Page[Book]{}, err
	}
	return pagination.Paginate(books, page, s.pageSize), nil
}

// Get returns a book by ISBN. Malformed ISBNs cannot be stored, so they are
// reported as not found.
func (s *Service) Get(ctx context.Context, rawISBN string) (Book, error) {
	canonical, err := isbn.Normalize(rawISBN)
	if err != nil {
		return Book{}, ErrNotFound
	}
	return s.repo.FindByISBN(ctx, canonical)
}

// Create validates the form, rejects ISBNs already in the catalog and inserts
// the book. An uploaded cover is stored only once the insert has succeeded. On
// validation failure the draft is returned alongside the error.
func (s *Service) Create(ctx context.Context, values url.Values, upload *CoverUpload) (Book, error) {
	draft, err := Parse(values)
	if draft.ISBN == "" {
		var verrs ValidationErrors
		switch {
		case err == nil:
			err = ValidationErrors{"isbn": "isbn is required"}
		case errors.As(err, &verrs):
			verrs["isbn"] = "isbn is required"
		}
	}
	if err != nil {
		return draft, err
	}

	if err := s.ensureUnique(ctx, draft.ISBN); err != nil {
		return draft, err
	}

	if upload != nil {
		if _, err := s.coverContentType(upload); err != nil {
			return draft, err
		}
	}

	if _, err := s.repo.Insert(ctx, &draft); err != nil {
		return draft, err
	}

	if upload != nil {
		if err := s.saveWithCover(ctx, &draft, upload, nil); err != nil {
			if _, delErr := s.repo.DeleteByISBN(ctx, draft.ISBN); delErr != nil {
				log.Error().Err(delErr).Str("isbn", draft.ISBN).Msg("failed to roll back book after cover failure")
			}
			return draft, err
		}
	}
	return draft, nil
}

// Update replaces the mutable fields of the book stored under rawISBN. The
// ISBN itself cannot change, so an isbn form value is ignored.
func (s *Service) Update(ctx context.Context, rawISBN string, values url.Values, upload *CoverUpload) (Book, error) {
	existing, err := s.Get(ctx, rawISBN)
	if err != nil {
		return Book{}, err
	}

	fields := make(url.Values, len(values))
	for k, v := range values {
		if k != "isbn" {
			fields[k] = v
		}
	}

	draft, err := Parse(fields)
	draft.ID = existing.ID
	draft.ISBN = existing.ISBN
	draft.CreatedAt = existing.CreatedAt
	if err != nil {
		return draft, err
	}

	if upload != nil {
		err := s.saveWithCover(ctx, &draft, upload, existing.Cover)
		return draft, err
	}

	matched, err := s.repo.UpdateByISBN(ctx, existing.ISBN, draft)
	if err != nil {
		return draft, err
	}
	if matched == 0 {
		return draft, ErrNotFound
	}
	return draft, nil
}

// Delete removes the book stored under rawISBN.
func (s *Service) Delete(ctx context.Context, rawISBN string) error {
	canonical, err := isbn.Normalize(rawISBN)
	if err != nil {
		return ErrNotFound
	}
	deleted, err := s.repo.DeleteByISBN(ctx, canonical)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// FromLookup builds an unsaved book from the metadata service. The ISBN is
// validated before any network call. Duplicates are not checked.
func (s *Service) FromLookup(ctx context.Context, rawISBN string) (Book, error) {
	canonical, err := isbn.Normalize(rawISBN)
	if err != nil {
		return Book{}, ValidationErrors{"isbn": err.Error()}
	}

	edition, err := s.fetcher.LookupISBN(ctx, canonical)
	if err != nil {
		return Book{}, &LookupError{ISBN: canonical, Err: err}
	}

	b := New(canonical)
	b.Title = edition.Title
	b.Edition = edition.Publisher
	if len(edition.Authors) > 0 {
		b.Authors = append([]string{}, edition.Authors...)
	}
	b.Cover = stringPtr(edition.CoverThumbnailURL)
	return b, nil
}

// Prefill is FromLookup for a book that is about to be created, so it also
// rejects ISBNs already in the catalog.
func (s *Service) Prefill(ctx context.Context, rawISBN string) (Book, error) {
	b, err := s.FromLookup(ctx, rawISBN)
	if err != nil {
		return Book{}, err
	}
	if err := s.ensureUnique(ctx, b.ISBN); err != nil {
		return Book{}, err
	}
	return b, nil
}

// Ping checks the catalog store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// ensureUnique is advisory; the stores enforce uniqueness on insert as well.
func (s *Service) ensureUnique(ctx context.Context, canonical string) error {
	_, err := s.repo.FindByISBN(ctx, canonical)
	switch {
	case err == nil:
		return ErrDuplicateISBN
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) coverContentType(upload *CoverUpload) (string, error) {
	contentType := cover.ContentType(upload.Filename, upload.ContentType)
	if !cover.IsImage(contentType) {
		return "", ValidationErrors{coverField: "cover must be an image"}
	}
	if s.covers == nil {
		return "", errors.New("cover storage is not configured")
	}
	return contentType, nil
}

// saveWithCover stores the upload and writes b with the new cover URL. When the
// write fails the stored object is removed again, unless previous (the cover
// the row held before) still points at it.
func (s *Service) saveWithCover(ctx context.Context, b *Book, upload *CoverUpload, previous *string) error {
	contentType, err := s.coverContentType(upload)
	if err != nil {
		return err
	}

	key := cover.Key(b.ISBN, upload.Filename)
	location, err := s.covers.Store(ctx, key, upload.Content, upload.Size, contentType)
	if err != nil {
		log.Warn().Err(err).Str("isbn", b.ISBN).Str("key", key).Msg("cover upload failed")
		return fmt.Errorf("store cover: %w", err)
	}

	withCover := *b
	withCover.Cover = &location
	matched, err := s.repo.UpdateByISBN(ctx, b.ISBN, withCover)
	if err == nil && matched > 0 {
		*b = withCover
		return nil
	}

	referenced := err != nil && previous != nil && *previous == location
	if !referenced {
		s.discardCover(ctx, key)
	}
	if err == nil {
		err = ErrNotFound
	}
	return err
}

func (s *Service) discardCover(ctx context.Context, key string) {
	if err := s.covers.Remove(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to remove orphaned cover")
	}
}
