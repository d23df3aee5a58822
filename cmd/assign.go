package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newAssignCommand())
}

func newAssignCommand() *cobra.Command {
	var databaseURL string

	assignCmd := &cobra.Command{
		Use:   "assign",
		Short: "Manage building assignments for dynamically scoped principals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	assignCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Assignment store URL. Can also be set via CITYAUTHZ_DATABASE_URL.")

	assignCmd.AddCommand(&cobra.Command{
		Use:   "set <subject> [building...]",
		Short: "Replace a subject's building assignments (no buildings clears them)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newStoreClient(databaseURL)
			if err != nil {
				return err
			}
			defer client.Close()

			subject := strings.TrimSpace(args[0])
			buildings := parseAssigned(args[1:])
			if err := client.SetAssignments(cmd.Context(), subject, buildings); err != nil {
				return err
			}

			cmd.Printf("Assigned %d building(s) to %s\n", len(buildings), subject)
			return nil
		},
	})

	assignCmd.AddCommand(&cobra.Command{
		Use:   "list <subject>",
		Short: "List a subject's building assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newStoreClient(databaseURL)
			if err != nil {
				return err
			}
			defer client.Close()

			buildings, err := client.Assignments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, building := range buildings {
				cmd.Println(building)
			}
			return nil
		},
	})

	return assignCmd
}
