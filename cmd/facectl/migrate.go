package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/your-org/classcam/internal/facedb"
	"github.com/your-org/classcam/internal/storage"
)

var (
	migrateTo   string
	migratePath string
	migrateKey  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the face database to another backend",
	Long:  "Reads the configured backend and writes every section and identity to --to (file, postgres or minio).",
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateTo == cfg.Database.Backend {
			return fmt.Errorf("source and destination are both %s", migrateTo)
		}

		snap, err := store.Load(cmd.Context())
		if errors.Is(err, facedb.ErrNoSnapshot) {
			return errors.New("nothing to migrate: source has no snapshot")
		}
		if err != nil {
			return fmt.Errorf("load source: %w", err)
		}
		src := facedb.FromSnapshot(snap)

		dbCfg := cfg.Database
		dbCfg.Backend = migrateTo
		if migratePath != "" {
			dbCfg.Path = migratePath
		}
		if migrateKey != "" {
			dbCfg.SnapshotKey = migrateKey
		}
		dst, closeDst, err := storage.OpenSnapshotStore(cmd.Context(), dbCfg, cfg.Postgres, cfg.MinIO)
		if err != nil {
			return fmt.Errorf("open destination: %w", err)
		}
		defer closeDst()

		out := facedb.New()
		for _, s := range src.Sections() {
			if err := out.CreateSection(s.Name); err != nil {
				return err
			}
		}

		bar := progressbar.NewOptions(src.Len(),
			progressbar.OptionSetDescription("Migrating identities"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		var addErr error
		src.Each("", func(ident *facedb.Identity) bool {
			if addErr = out.Add(*ident); addErr != nil {
				addErr = fmt.Errorf("copy %s: %w", ident.ExternalID, addErr)
				return false
			}
			_ = bar.Add(1)
			return true
		})
		_ = bar.Finish()
		if addErr != nil {
			return addErr
		}

		if err := dst.Save(cmd.Context(), out.Snapshot()); err != nil {
			return fmt.Errorf("save destination: %w", err)
		}
		st := out.Stats()
		fmt.Printf("Migrated %d sections, %d identities, %d samples from %s to %s\n",
			st.Sections, st.Identities, st.TotalSamples, cfg.Database.Backend, migrateTo)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "destination backend: file, postgres or minio")
	migrateCmd.Flags().StringVar(&migratePath, "path", "", "destination file path (file backend)")
	migrateCmd.Flags().StringVar(&migrateKey, "key", "", "destination object key (minio backend)")
	_ = migrateCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(migrateCmd)
}
