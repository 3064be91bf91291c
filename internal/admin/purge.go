package admin

import (
	"fmt"

	"github.com/dmitrijs2005/decksync/internal/blobs"
	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/spf13/cobra"
)

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	RetentionDays int
	BatchSize     int
	S3            blobs.S3Options
}

// NewPurgeCommand creates the purge command. It runs one pass, the same one
// the server scheduler runs, and prints the per-entity counts.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently remove tombstones older than the retention window",
		Long: `Run one purge pass. Children go before parents and the whole pass is a
single transaction. Blobs of purged documents are removed after commit.

Example:
  decksync-admin purge --retention-days 30 --batch-size 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			logger, closeLogger, err := logging.New(logging.Options{Level: opts.LogLevel, Format: "text"})
			if err != nil {
				return err
			}
			defer closeLogger()

			db, rm, err := openStore(ctx, rootOpts)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			purger := newPurger(db, rm, blobs.NewS3Store(opts.S3), logger)
			counts, err := purger.Purge(ctx, models.PurgeOptions{RetentionDays: opts.RetentionDays, BatchSize: opts.BatchSize})
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			return output(cmd, rootOpts, counts, func() string { return purgeCounts(counts) })
		},
	}

	cmd.Flags().IntVar(&opts.RetentionDays, "retention-days", 30, "keep tombstones younger than this many days")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", common.DefaultPurgeBatchSize, "max rows per entity type")
	cmd.Flags().StringVar(&opts.S3.Region, "s3-region", "us-east-1", "S3 region")
	cmd.Flags().StringVar(&opts.S3.AccessKey, "s3-user", "admin", "S3 access key")
	cmd.Flags().StringVar(&opts.S3.SecretKey, "s3-password", "secretpassword", "S3 secret key")
	cmd.Flags().StringVar(&opts.S3.Bucket, "s3-bucket", "decksync", "S3 bucket")
	cmd.Flags().StringVar(&opts.S3.BaseEndpoint, "s3-endpoint", "http://127.0.0.1:9000/", "S3 base endpoint")

	return cmd
}
