package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/your-org/classcam/internal/storage"
	"github.com/your-org/classcam/internal/vision"
)

var (
	searchSection  string
	searchTopK     int
	searchPGVector bool
)

var searchCmd = &cobra.Command{
	Use:   "search IMAGE",
	Short: "Show the closest enrolled identities for the largest face in an image",
	Long: "Runs detection on IMAGE and ranks identities by similarity without applying the match threshold. " +
		"With --pgvector the ranking comes from the Postgres centroid mirror instead of the in-memory matcher.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		img, err := vision.DecodeImage(data)
		if err != nil {
			return err
		}

		if err := vision.SetupRuntime(cfg.Vision.ONNXLibrary); err != nil {
			return err
		}
		defer vision.DestroyRuntime()

		analyzer, err := vision.NewFaceAnalyzer(cfg.Analyzer())
		if err != nil {
			return fmt.Errorf("load face models: %w", err)
		}
		defer analyzer.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RANK\tEXTERNAL ID\tNAME\tSECTION\tSIMILARITY")

		if searchPGVector {
			pg, ok := store.(*storage.PostgresStore)
			if !ok {
				return errors.New("--pgvector needs database.backend: postgres")
			}
			dets, err := analyzer.Detect(cmd.Context(), img)
			if err != nil {
				return err
			}
			idx := vision.Largest(dets)
			if idx < 0 {
				fmt.Println("No face detected.")
				return nil
			}
			rows, err := pg.NearestCentroids(cmd.Context(), dets[idx].Embedding, searchSection, searchTopK)
			if err != nil {
				return err
			}
			for i, r := range rows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.4f\n", i+1, r.ExternalID, r.Name, r.Section, r.Similarity)
			}
			return w.Flush()
		}

		eng, err := loadEngine(cmd.Context(), analyzer)
		if err != nil {
			return err
		}
		matches, err := eng.Search(cmd.Context(), img, searchSection, searchTopK)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("No face detected or no enrolled identities.")
			return nil
		}
		for i, m := range matches {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.4f\n", i+1, m.ExternalID, m.Name, m.Section, m.Similarity)
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchSection, "section", "", "restrict the search to one section")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 5, "number of identities to show")
	searchCmd.Flags().BoolVar(&searchPGVector, "pgvector", false, "rank with the Postgres centroid mirror")
	rootCmd.AddCommand(searchCmd)
}
