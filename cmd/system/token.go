package system

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Alijeyrad/carelink/config"
	"github.com/Alijeyrad/carelink/internal/model"
	pasetotoken "github.com/Alijeyrad/carelink/pkg/paseto"
)

// NewTokenCommand mints an access token for local testing against a
// running server.
func NewTokenCommand() *cobra.Command {
	var (
		userID    string
		sessionID string
		roles     []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		Example: `  carelink system token --user 0192b8a4-5c3e-7a10-9f00-000000000001 --role nurse
  carelink system token --user <id> --role member --role family_carer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}

			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			for _, r := range roles {
				if !model.Role(r).Valid() {
					return fmt.Errorf("unknown role %q", r)
				}
			}

			id := pasetotoken.Identity{UserID: uid, Roles: roles}
			if sessionID != "" {
				sid, err := uuid.Parse(sessionID)
				if err != nil {
					return fmt.Errorf("invalid --session: %w", err)
				}
				id.SessionID = &sid
			}

			mgr, err := pasetotoken.NewPasetoManager(cfg)
			if err != nil {
				return fmt.Errorf("failed to create token manager: %w", err)
			}
			tok, err := mgr.IssueAccess(id)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id the token is issued to")
	cmd.Flags().StringVar(&sessionID, "session", "", "optional session id, checked against redis when redis is configured")
	cmd.Flags().StringArrayVar(&roles, "role", nil, "role tag to embed; repeat for several")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
