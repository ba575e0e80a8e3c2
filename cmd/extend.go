package cmd

import (
	"context"
	"fmt"

	"github.com/jayteealao/objlock/internal/config"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/spf13/cobra"
)

var extendCmd = &cobra.Command{
	Use:   "extend <object-id>",
	Short: "Extend a lock held by this session",
	Long: `Push the expiry of a lock held by the current session and locker.

The new expiry is now plus --extra; --extra 0 holds the lock until released.

Examples:
  objlock extend page-42 --extra 1h
  objlock extend page-42 --extra 1h --version 8`,
	Args: cobra.ExactArgs(1),
	RunE: runExtend,
}

func init() {
	rootCmd.AddCommand(extendCmd)

	extendCmd.Flags().String("type", "", "derive the lock key from this object type and the given id")
	extendCmd.Flags().Duration("extra", 0, "new lifetime measured from now (default is --lock-duration)")
	extendCmd.Flags().Int64("version", 0, "object version being edited")
}

func runExtend(cmd *cobra.Command, args []string) error {
	objectType, _ := cmd.Flags().GetString("type")
	version, _ := cmd.Flags().GetInt64("version")

	objectID := resolveObjectID(objectType, args[0])

	return withManager(cmd, func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error {
		extra := durationFlag(cmd, "extra", cfg.LockDuration)

		l, err := mgr.ExtendLock(ctx, objectID, cfg.Session, cfg.Locker, version, extra)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Extended %s (%s)\n", l.ObjectID, formatExpiry(l))
		return nil
	})
}
