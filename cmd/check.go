package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/porthorian/cityauthz"
	"github.com/porthorian/cityauthz/pkg/authz"
)

var errDenied = errors.New("access denied")

type checkOptions struct {
	Role        string
	Permission  string
	Building    string
	Subject     string
	Assigned    []string
	DatabaseURL string
	FailOnDeny  bool
}

func init() {
	rootCmd.AddCommand(newCheckCommand())
}

func newCheckCommand() *cobra.Command {
	opts := checkOptions{}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a single access decision against the built-in catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	checkCmd.PersistentFlags().StringVar(&opts.Role, "role", "", "Role to evaluate (e.g. mayor, building_manager).")
	checkCmd.PersistentFlags().BoolVar(&opts.FailOnDeny, "fail-on-deny", false, "Exit non-zero when the decision is a denial.")
	_ = checkCmd.MarkPersistentFlagRequired("role")

	permissionCmd := &cobra.Command{
		Use:   "permission",
		Short: "Check whether a role holds a permission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := authz.ParseRole(opts.Role)
			if err != nil {
				return err
			}
			perm, err := authz.ParsePermission(opts.Permission)
			if err != nil {
				return err
			}

			allowed := authz.NewEngine(nil).HasPermission(role, perm)
			return reportDecision(cmd, opts, allowed, fmt.Sprintf("%s %s", role, perm))
		},
	}
	permissionCmd.Flags().StringVar(&opts.Permission, "permission", "", "Permission token (e.g. control-sensors).")
	_ = permissionCmd.MarkFlagRequired("permission")
	checkCmd.AddCommand(permissionCmd)

	buildingCmd := &cobra.Command{
		Use:   "building",
		Short: "Check whether a role may access a building",
		Long: "Check whether a role may access a building. Assignments come from --assigned, " +
			"or from the assignment store when --subject is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := authz.ParseRole(opts.Role)
			if err != nil {
				return err
			}

			allowed, err := evaluateBuilding(cmd, opts, role)
			if err != nil {
				return err
			}
			return reportDecision(cmd, opts, allowed, fmt.Sprintf("%s %s", role, opts.Building))
		},
	}
	buildingCmd.Flags().StringVar(&opts.Building, "building", "", "Building id.")
	buildingCmd.Flags().StringSliceVar(&opts.Assigned, "assigned", nil, "Comma-separated building ids assigned to the principal.")
	buildingCmd.Flags().StringVar(&opts.Subject, "subject", "", "Load assignments for this subject from the assignment store.")
	buildingCmd.Flags().StringVar(&opts.DatabaseURL, "database-url", "", "Assignment store URL. Can also be set via CITYAUTHZ_DATABASE_URL.")
	_ = buildingCmd.MarkFlagRequired("building")
	checkCmd.AddCommand(buildingCmd)

	checkCmd.AddCommand(&cobra.Command{
		Use:   "navigation",
		Short: "Print the navigation entries visible to a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := authz.ParseRole(opts.Role)
			if err != nil {
				return err
			}
			for _, item := range authz.NewEngine(nil).VisibleNavigation(role) {
				cmd.Printf("%s\t%s\n", item.Path, item.Label)
			}
			return nil
		},
	})

	return checkCmd
}

func evaluateBuilding(cmd *cobra.Command, opts checkOptions, role authz.Role) (bool, error) {
	if strings.TrimSpace(opts.Subject) == "" {
		return authz.NewEngine(nil).CanAccessBuilding(role, opts.Building, parseAssigned(opts.Assigned)...), nil
	}

	client, err := newStoreClient(opts.DatabaseURL)
	if err != nil {
		return false, err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmd.PrintErrf("warning: failed to close client cleanly: %v\n", closeErr)
		}
	}()

	return client.CanAccessBuildingFor(cmd.Context(), role, opts.Subject, opts.Building)
}

func reportDecision(cmd *cobra.Command, opts checkOptions, allowed bool, subject string) error {
	if allowed {
		cmd.Printf("allowed: %s\n", subject)
		return nil
	}

	cmd.Printf("denied: %s\n", subject)
	if opts.FailOnDeny {
		return errDenied
	}
	return nil
}

// parseAssigned trims entries and drops blanks so "a, ,b" yields [a b].
func parseAssigned(values []string) []string {
	assigned := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if id := strings.TrimSpace(part); id != "" {
				assigned = append(assigned, id)
			}
		}
	}
	return assigned
}

func newStoreClient(databaseURLFlag string) (*cityauthz.Client, error) {
	databaseURL := strings.TrimSpace(databaseURLFlag)
	if databaseURL == "" {
		databaseURL = lookupEnv("CITYAUTHZ_DATABASE_URL")
	}
	if databaseURL == "" {
		return nil, errors.New("missing database URL: set --database-url or CITYAUTHZ_DATABASE_URL")
	}

	return cityauthz.New(cityauthz.Config{
		Runtime: cityauthz.RuntimeConfig{
			Storage: cityauthz.StorageConfig{
				Backend: cityauthz.StorageBackendPostgres,
				Postgres: cityauthz.PostgresConfig{
					DriverName: "pgx",
					DSN:        databaseURL,
				},
			},
		},
	})
}
