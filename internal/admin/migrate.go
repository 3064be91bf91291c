package admin

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, rm, err := openStore(ctx, rootOpts)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := rm.RunMigrations(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return output(cmd, rootOpts, map[string]string{"status": "migrated"}, func() string {
				return "migrations applied"
			})
		},
	}
}
