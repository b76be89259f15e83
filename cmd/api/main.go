package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collecthive/internal/book"
	"collecthive/internal/cover"
	"collecthive/internal/httpx"
	"collecthive/internal/platform/cache"
	"collecthive/internal/platform/openlibrary"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	loadEnvFiles()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo := mustOpenRepository(ctx, cfg)
	defer closeRepo()

	covers := mustOpenCoverStorage(ctx, cfg)

	var fetcher book.MetadataFetcher = openlibrary.NewClient(cfg.OpenLibraryUserAgent, cfg.OpenLibraryRPS, cfg.OpenLibraryMaxRetries)
	if cfg.RedisAddr != "" {
		redisClient := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		defer redisClient.Close()

		lookupCache := cache.NewLookupCache(redisClient, fetcher, cfg.LookupCacheTTL)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := lookupCache.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, lookups will bypass the cache until it recovers")
		}
		cancel()
		fetcher = lookupCache
	}

	bookService := book.NewService(repo, fetcher, covers, cfg.ItemsPerPage)
	bookHandler := book.NewHTTPHandler(bookService, cfg.MaxUploadBytes)

	rateLimiter := httpx.NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go rateLimiter.Run(ctx)
	router := newRouter(bookHandler, bookService, uploadDirFor(cfg))
	handler := httpx.Chain(router,
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware,
		httpx.RecoveryMiddleware,
		httpx.SecurityHeadersMiddleware(false),
		httpx.CORSMiddleware(cfg.CORSAllowedOrigins),
		httpx.RequestSizeLimitMiddleware(cfg.MaxUploadBytes),
		rateLimiter.Middleware,
	)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().
		Str("addr", cfg.Addr).
		Str("catalog_backend", cfg.CatalogBackend).
		Str("cover_backend", cfg.CoverBackend).
		Bool("lookup_cache", cfg.RedisAddr != "").
		Msg("starting server")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

type pinger interface {
	Ping(ctx context.Context) error
}

// newRouter mounts the book routes, the health checks and, when uploadDir is set, the
// locally stored covers.
func newRouter(books *book.HTTPHandler, store pinger, uploadDir string) *http.ServeMux {
	router := http.NewServeMux()

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("readiness check failed")
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if uploadDir != "" {
		router.Handle("GET "+uploadsURLPrefix+"/", http.StripPrefix(uploadsURLPrefix+"/", http.FileServer(http.Dir(uploadDir))))
	}

	books.Register(router)
	return router
}

func uploadDirFor(cfg config) string {
	if cfg.CoverBackend == coverLocal {
		return cfg.UploadDir
	}
	return ""
}

func mustOpenRepository(ctx context.Context, cfg config) (book.Repository, func()) {
	switch cfg.CatalogBackend {
	case backendMongo:
		client := mustOpenMongo(ctx, cfg.MongoURI)
		repo := book.NewMongoRepo(client, cfg.MongoDatabase, cfg.DBTimeout)
		if err := repo.EnsureIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("cannot create mongo indexes")
		}
		return repo, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}
	default:
		pool := mustOpenDB(ctx, cfg.DatabaseDSN)
		return book.NewPostgresRepo(pool, cfg.DBTimeout), pool.Close
	}
}

func mustOpenDB(ctx context.Context, dsn string) *pgxpool.Pool {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot create db pool")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		log.Fatal().Err(err).Str("dsn", redactDSN(dsn)).Msg("cannot ping database")
	}
	log.Info().Msg("database connection OK")
	return pool
}

func mustOpenMongo(ctx context.Context, uri string) *mongo.Client {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Fatal().Err(err).Str("uri", redactDSN(uri)).Msg("cannot connect to mongo")
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		log.Fatal().Err(err).Str("uri", redactDSN(uri)).Msg("cannot ping mongo")
	}
	log.Info().Msg("mongo connection OK")
	return client
}

func mustOpenCoverStorage(ctx context.Context, cfg config) book.CoverStorage {
	if cfg.CoverBackend == coverMinIO {
		storage, err := cover.NewMinIOStorage(ctx, cover.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("cannot initialise minio cover storage")
		}
		return storage
	}

	storage, err := cover.NewLocalStorage(cfg.UploadDir, uploadsURLPrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot initialise local cover storage")
	}
	return storage
}
