package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const bookColumns = `id::text, isbn, title, subtitle, authors, description, edition, cover, status, created_at`

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func scanBook(row pgx.Row) (Book, error) {
	var (
		b      Book
		status string
	)
	err := row.Scan(
		&b.ID, &b.ISBN, &b.Title, &b.Subtitle, &b.Authors, &b.Description,
		&b.Edition, &b.Cover, &status, &b.CreatedAt,
	)
	if err != nil {
		return Book{}, err
	}
	b.Status = Status(status)
	b.applyDefaults()
	return b, nil
}

func (r *PostgresRepo) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE isbn = $1 LIMIT 1`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := scanBook(r.db.QueryRow(timeoutCtx, query, isbn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}
	return b, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, book *Book) (string, error) {
	const sql = `
		INSERT INTO books (isbn, title, subtitle, authors, description, edition, cover, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text, created_at`

	book.applyDefaults()
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, sql,
		book.ISBN, book.Title, book.Subtitle, book.Authors, book.Description,
		book.Edition, book.Cover, string(book.Status),
	).Scan(&book.ID, &book.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", ErrDuplicateISBN
		}
		return "", fmt.Errorf("insert book: %w", err)
	}
	return book.ID, nil
}

func (r *PostgresRepo) UpdateByISBN(ctx context.Context, isbn string, book Book) (int64, error) {
	const sql = `
		UPDATE books SET
			title = $2,
			subtitle = $3,
			authors = $4,
			description = $5,
			edition = $6,
			cover = $7,
			status = $8,
			updated_at = NOW()
		WHERE isbn = $1`

	book.applyDefaults()
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, sql,
		isbn, book.Title, book.Subtitle, book.Authors, book.Description,
		book.Edition, book.Cover, string(book.Status),
	)
	if err != nil {
		return 0, fmt.Errorf("update book: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) DeleteByISBN(ctx context.Context, isbn string) (int64, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, `DELETE FROM books WHERE isbn = $1`, isbn)
	if err != nil {
		return 0, fmt.Errorf("delete book: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books ORDER BY position`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.Ping(timeoutCtx)
}
