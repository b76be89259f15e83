package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const booksCollection = "books"

type mongoBook struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ISBN        string             `bson:"isbn"`
	Title       string             `bson:"title"`
	Subtitle    *string            `bson:"subtitle"`
	Authors     []string           `bson:"authors"`
	Description *string            `bson:"description"`
	Edition     string             `bson:"edition"`
	Cover       *string            `bson:"cover"`
	Status      string             `bson:"status"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func (d mongoBook) toBook() Book {
	b := Book{
		ID:          d.ID.Hex(),
		ISBN:        d.ISBN,
		Title:       d.Title,
		Subtitle:    d.Subtitle,
		Authors:     d.Authors,
		Description: d.Description,
		Edition:     d.Edition,
		Cover:       d.Cover,
		Status:      Status(d.Status),
		CreatedAt:   d.CreatedAt,
	}
	b.applyDefaults()
	return b
}

// MongoRepo stores books as documents, one per ISBN.
type MongoRepo struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

func NewMongoRepo(client *mongo.Client, database string, timeout time.Duration) *MongoRepo {
	return &MongoRepo{
		client:  client,
		coll:    client.Database(database).Collection(booksCollection),
		timeout: timeout,
	}
}

func (r *MongoRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// EnsureIndexes creates the unique ISBN index that backs the duplicate check.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.coll.Indexes().CreateOne(timeoutCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "isbn", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("books_isbn_key"),
	})
	if err != nil {
		return fmt.Errorf("create isbn index: %w", err)
	}
	return nil
}

func (r *MongoRepo) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var doc mongoBook
	err := r.coll.FindOne(timeoutCtx, bson.M{"isbn": isbn}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}
	return doc.toBook(), nil
}

func (r *MongoRepo) Insert(ctx context.Context, book *Book) (string, error) {
	book.applyDefaults()
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := mongoBook{
		ID:          primitive.NewObjectID(),
		ISBN:        book.ISBN,
		Title:       book.Title,
		Subtitle:    book.Subtitle,
		Authors:     book.Authors,
		Description: book.Description,
		Edition:     book.Edition,
		Cover:       book.Cover,
		Status:      string(book.Status),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.coll.InsertOne(timeoutCtx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicateISBN
		}
		return "", fmt.Errorf("insert book: %w", err)
	}

	book.ID = doc.ID.Hex()
	book.CreatedAt = doc.CreatedAt
	return book.ID, nil
}

func (r *MongoRepo) UpdateByISBN(ctx context.Context, isbn string, book Book) (int64, error) {
	book.applyDefaults()
	update := bson.M{"$set": bson.M{
		"title":       book.Title,
		"subtitle":    book.Subtitle,
		"authors":     book.Authors,
		"description": book.Description,
		"edition":     book.Edition,
		"cover":       book.Cover,
		"status":      string(book.Status),
		"updated_at":  time.Now().UTC(),
	}}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.coll.UpdateOne(timeoutCtx, bson.M{"isbn": isbn}, update)
	if err != nil {
		return 0, fmt.Errorf("update book: %w", err)
	}
	return res.MatchedCount, nil
}

func (r *MongoRepo) DeleteByISBN(ctx context.Context, isbn string) (int64, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.coll.DeleteOne(timeoutCtx, bson.M{"isbn": isbn})
	if err != nil {
		return 0, fmt.Errorf("delete book: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *MongoRepo) List(ctx context.Context) ([]Book, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(timeoutCtx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}

	var docs []mongoBook
	if err := cursor.All(timeoutCtx, &docs); err != nil {
		return nil, err
	}

	out := make([]Book, len(docs))
	for i, d := range docs {
		out[i] = d.toBook()
	}
	return out, nil
}

func (r *MongoRepo) Ping(ctx context.Context) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Ping(timeoutCtx, readpref.Primary())
}
