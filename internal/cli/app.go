// Package cli is the interactive front-end of the mediasync client: a small
// REPL for signing in, queueing media posts, and watching them sync.
package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/vendora/mediasync/internal/config"
	"github.com/vendora/mediasync/internal/identity"
	"github.com/vendora/mediasync/internal/logging"
	"github.com/vendora/mediasync/internal/remote/blob"
	"github.com/vendora/mediasync/internal/remote/catalog"
	"github.com/vendora/mediasync/internal/session"
	"github.com/vendora/mediasync/internal/store"
	"github.com/vendora/mediasync/internal/upload"

	_ "modernc.org/sqlite"
)

type App struct {
	config  *config.Config
	queue   store.Repository
	session *session.Manager
	coord   *upload.Coordinator
	secret  []byte
	reader  *bufio.Reader
	log     logging.Logger
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()
	log := logging.NewSlogLogger(slog.Default())

	db, err := store.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Error(ctx, "error initializing queue database", "error", err)
		return nil, err
	}
	queue := store.NewSQLiteRepository(db)

	catalogDB, err := catalog.Open(c.CatalogDSN)
	if err != nil {
		return nil, err
	}
	cat := catalog.NewPostgresCatalog(catalogDB)

	blobs, err := blob.NewS3Store(ctx, blob.S3Config{
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}

	linker := identity.NewLinker(cat, identity.LinkerConfig{}, log)
	sess := session.NewManager(linker, log)

	coord := upload.NewCoordinator(queue, blobs, cat, upload.Config{
		Workers:      c.UploadWorkers,
		MaxRetries:   c.MaxRetries,
		BackoffBase:  c.BackoffBase,
		BackoffCap:   c.BackoffCap,
		PollInterval: c.PollInterval,
	}, log)

	return &App{
		config:  c,
		queue:   queue,
		session: sess,
		coord:   coord,
		secret:  []byte(c.IdentitySecret),
		reader:  bufio.NewReader(os.Stdin),
		log:     log,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	a.Root(ctx)
}

func (a *App) isSignedIn() bool {
	return a.session.CurrentSession().State == session.StateReady
}
