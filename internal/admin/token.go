package admin

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/auth"
	"github.com/spf13/cobra"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	UserID string
	Secret string
	TTL    time.Duration
}

// NewTokenCommand creates the token command, which signs an access token
// for a user with the server secret. Meant for development and smoke tests.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.UserID == "" {
				return errors.New("--user is required")
			}
			token, err := auth.GenerateToken(opts.UserID, []byte(opts.Secret), opts.TTL)
			if err != nil {
				return err
			}
			return output(cmd, rootOpts, map[string]string{"userId": opts.UserID, "accessToken": token}, func() string {
				return token
			})
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id the token is issued to")
	cmd.Flags().StringVar(&opts.Secret, "secret", "secretKey", "JWT HMAC secret")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token validity")

	return cmd
}
