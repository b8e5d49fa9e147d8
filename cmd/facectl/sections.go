package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List, create and delete sections",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}

		sections := eng.ListSections()
		if len(sections) == 0 {
			fmt.Println("No sections found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SECTION\tPERSONS\tSAMPLES")
		for _, s := range sections {
			fmt.Fprintf(w, "%s\t%d\t%d\n", s.Name, s.PersonCount, s.TotalSamples)
		}
		return w.Flush()
	},
}

var sectionCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an empty section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		if err := eng.CreateSection(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Created section %s\n", args[0])
		return nil
	},
}

var sectionDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a section and every identity in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		n, err := eng.DeleteSection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Deleted section %s (%d identities)\n", args[0], n)
		return nil
	},
}

var membersCmd = &cobra.Command{
	Use:   "members SECTION",
	Short: "List the identities enrolled in a section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		members, err := eng.ListSectionMembers(args[0])
		if err != nil {
			return err
		}
		if len(members) == 0 {
			fmt.Printf("Section %s has no members.\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "EXTERNAL ID\tNAME\tSAMPLES\tANGLES\tREGISTERED")
		for _, m := range members {
			registered := "-"
			if !m.RegisteredAt.IsZero() {
				registered = m.RegisteredAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n", m.ExternalID, m.Name, m.Samples, m.AnglesCollected, registered)
		}
		return w.Flush()
	},
}

func init() {
	sectionsCmd.AddCommand(sectionCreateCmd, sectionDeleteCmd)
	rootCmd.AddCommand(sectionsCmd, membersCmd)
}
