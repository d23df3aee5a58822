package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/porthorian/cityauthz/pkg/authz"
)

func init() {
	rootCmd.AddCommand(newCatalogCommand(authz.DefaultCatalog()))
}

func newCatalogCommand(catalog *authz.Catalog) *cobra.Command {
	var asJSON bool

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the built-in role, permission and navigation catalogs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	catalogCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table.")

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "roles",
		Short: "List roles with their permissions and building rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printRoles(cmd.OutOrStdout(), catalog, asJSON)
		},
	})

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "permissions",
		Short: "List permissions with their category and granting roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPermissions(cmd.OutOrStdout(), catalog, asJSON)
		},
	})

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "navigation",
		Short: "List navigation entries in menu order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printNavigation(cmd.OutOrStdout(), catalog, asJSON)
		},
	})

	return catalogCmd
}

type roleRow struct {
	Role         string   `json:"role"`
	BuildingRule string   `json:"building_rule"`
	Buildings    []string `json:"buildings,omitempty"`
	Permissions  []string `json:"permissions"`
}

func roleRows(catalog *authz.Catalog) []roleRow {
	rows := make([]roleRow, 0, len(authz.Roles()))
	for _, role := range authz.Roles() {
		row := roleRow{
			Role:        role.String(),
			Permissions: catalog.Permissions(role).Strings(),
		}
		if rule := catalog.BuildingRule(role); rule != nil {
			row.BuildingRule = string(rule.Kind())
			if list, ok := rule.(authz.FixedAllowList); ok {
				row.Buildings = list.IDs()
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func printRoles(w io.Writer, catalog *authz.Catalog, asJSON bool) error {
	rows := roleRows(catalog)
	if asJSON {
		return writeIndentedJSON(w, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tBUILDINGS\tPERMISSIONS")
	for _, row := range rows {
		buildings := row.BuildingRule
		if len(row.Buildings) > 0 {
			buildings += " (" + strings.Join(row.Buildings, ",") + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Role, buildings, strings.Join(row.Permissions, ","))
	}
	return tw.Flush()
}

type permissionRow struct {
	Permission string   `json:"permission"`
	Category   string   `json:"category"`
	Roles      []string `json:"roles"`
}

func printPermissions(w io.Writer, catalog *authz.Catalog, asJSON bool) error {
	rows := make([]permissionRow, 0, len(authz.AllPermissions()))
	for _, perm := range authz.AllPermissions() {
		roles := catalog.RolesWithPermission(perm)
		names := make([]string, 0, len(roles))
		for _, role := range roles {
			names = append(names, role.String())
		}
		rows = append(rows, permissionRow{
			Permission: perm.String(),
			Category:   string(perm.Category()),
			Roles:      names,
		})
	}
	if asJSON {
		return writeIndentedJSON(w, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERMISSION\tCATEGORY\tROLES")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Permission, row.Category, strings.Join(row.Roles, ","))
	}
	return tw.Flush()
}

type navigationRow struct {
	Path  string   `json:"path"`
	Label string   `json:"label"`
	Icon  string   `json:"icon"`
	Roles []string `json:"roles"`
}

func printNavigation(w io.Writer, catalog *authz.Catalog, asJSON bool) error {
	entries := catalog.Navigation()
	rows := make([]navigationRow, 0, len(entries))
	for _, entry := range entries {
		roles := entry.AllowedRoles.List()
		names := make([]string, 0, len(roles))
		for _, role := range roles {
			names = append(names, role.String())
		}
		rows = append(rows, navigationRow{Path: entry.Path, Label: entry.Label, Icon: entry.Icon, Roles: names})
	}
	if asJSON {
		return writeIndentedJSON(w, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLABEL\tICON\tROLES")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Path, row.Label, row.Icon, strings.Join(row.Roles, ","))
	}
	return tw.Flush()
}

func writeIndentedJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
