//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/classcam/internal/facedb"
	"github.com/your-org/classcam/internal/vision"
)

func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "classcam",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/classcam?sslmode=disable", host, port.Port())
	store, err := NewPostgresStoreDSN(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func basis(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestPostgresStore_SnapshotRoundTrip(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, facedb.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	db := facedb.New()
	_ = db.CreateSection("Grade10-Newton")
	_ = db.CreateSection("Grade10-Einstein")
	_ = db.Add(facedb.Identity{
		Name: "Ada", ExternalID: "S-001", Section: "Grade10-Newton",
		Embeddings: map[facedb.Angle][][]float32{facedb.AngleFront: {basis(512, 0)}},
		Metadata:   facedb.Metadata{RegisteredAt: time.Now().UTC().Truncate(time.Second)},
	})
	_ = db.Add(facedb.Identity{
		Name: "Bob", ExternalID: "S-002", Section: "Grade10-Einstein",
		Embeddings: map[facedb.Angle][][]float32{facedb.AngleLeft: {basis(512, 1)}},
	})

	if err := store.Save(ctx, db.Snapshot()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// A second save replaces rather than appends.
	if err := store.Save(ctx, db.Snapshot()); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := facedb.FromSnapshot(snap)
	if got.Len() != 2 || got.Sections()[0].Name != "Grade10-Newton" {
		t.Errorf("unexpected reload: %+v", got.Sections())
	}

	n, err := store.CountCentroids(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountCentroids() = %d, %v", n, err)
	}

	q := basis(512, 0)
	q[1] = 0.2
	q = vision.Normalize(q)

	matches, err := store.NearestCentroids(ctx, q, "", 2)
	if err != nil {
		t.Fatalf("NearestCentroids() error = %v", err)
	}
	if len(matches) != 2 || matches[0].ExternalID != "S-001" || matches[0].Similarity < 0.9 {
		t.Errorf("unexpected matches %+v", matches)
	}

	matches, err = store.NearestCentroids(ctx, q, "Grade10-Einstein", 5)
	if err != nil || len(matches) != 1 || matches[0].ExternalID != "S-002" {
		t.Errorf("section filtered matches = %+v, %v", matches, err)
	}
}
