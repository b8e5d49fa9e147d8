package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/classcam/internal/config"
	"github.com/your-org/classcam/internal/facedb"
)

// OpenSnapshotStore connects the backend named by db and returns the store
// with a close function.
func OpenSnapshotStore(ctx context.Context, db config.DatabaseConfig, pg config.PostgresConfig, mc config.MinIOConfig) (facedb.Store, func(), error) {
	switch db.Backend {
	case config.BackendFile, "":
		slog.Info("face database backend", "backend", "file", "path", db.Path)
		return facedb.NewFileStore(db.Path), func() {}, nil

	case config.BackendPostgres:
		store, err := NewPostgresStore(ctx, pg)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		slog.Info("face database backend", "backend", "postgres", "host", pg.Host, "db", pg.Name)
		return store, store.Close, nil

	case config.BackendMinIO:
		objects, err := NewMinIOStore(mc)
		if err != nil {
			return nil, nil, err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		slog.Info("face database backend", "backend", "minio", "bucket", mc.Bucket, "key", db.SnapshotKey)
		return objects.SnapshotStore(db.SnapshotKey), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown database backend %q", db.Backend)
	}
}
