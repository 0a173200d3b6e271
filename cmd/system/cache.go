package system

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alijeyrad/carelink/config"
	"github.com/Alijeyrad/carelink/internal/directory"
	redispkg "github.com/Alijeyrad/carelink/pkg/redis"
)

// NewFlushDirectoryCommand drops the shared directory snapshot so every
// instance reloads relationships on its next lookup.
func NewFlushDirectoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush-directory",
		Short: "Drop the cached relationship snapshot from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			rdb, err := redispkg.NewRedisFromCentral(ctx, cfg.Redis)
			if errors.Is(err, redispkg.ErrDisabled) {
				fmt.Println("Redis is not configured; nothing to flush.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			defer rdb.Close()

			cache := directory.NewCached(nil, rdb, time.Duration(cfg.Directory.CacheTTLSeconds)*time.Second)
			if err := cache.Invalidate(ctx); err != nil {
				return fmt.Errorf("failed to flush directory cache: %w", err)
			}
			fmt.Println("Directory cache flushed.")
			return nil
		},
	}

	return cmd
}
