package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkIDCmd = &cobra.Command{
	Use:   "check-id EXTERNAL_ID",
	Short: "Report whether an external id can be enrolled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		a := eng.CheckIDAvailable(args[0])
		if a.Available {
			fmt.Printf("%s is available\n", args[0])
			return nil
		}
		fmt.Printf("%s is not available: %s\n", args[0], a.Reason)
		return nil
	},
}

var deleteIdentityCmd = &cobra.Command{
	Use:   "delete-identity EXTERNAL_ID",
	Short: "Remove an enrolled identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		m, err := eng.DeleteIdentity(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s (%s, %d samples)\n", m.ExternalID, m.Name, m.Samples)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print database counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		st := eng.Stats()
		fmt.Printf("backend:     %s\n", cfg.Database.Backend)
		fmt.Printf("sections:    %d\n", st.Sections)
		fmt.Printf("identities:  %d\n", st.Identities)
		fmt.Printf("samples:     %d\n", st.TotalSamples)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkIDCmd, deleteIdentityCmd, statsCmd)
}
