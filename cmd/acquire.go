package cmd

import (
	"context"
	"fmt"

	"github.com/jayteealao/objlock/internal/config"
	apperrors "github.com/jayteealao/objlock/internal/errors"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/spf13/cobra"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire <lock-key>",
	Short: "Wait for a lock on a key",
	Long: `Wait until the lock key is free and lock it for the current locker.

Blocking acquisition uses the locker id as its session, so a lock taken here
can be released with 'objlock release --session <locker>'.

Examples:
  objlock acquire build-cache
  objlock acquire build-cache --wait 1m --duration 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runAcquire,
}

func init() {
	rootCmd.AddCommand(acquireCmd)

	acquireCmd.Flags().Duration("wait", 0, "how long to wait (default is --wait-timeout)")
	acquireCmd.Flags().Duration("duration", 0, "lock duration (default is --lock-duration)")
}

func runAcquire(cmd *cobra.Command, args []string) error {
	key := args[0]

	return withManager(cmd, func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error {
		wait := durationFlag(cmd, "wait", cfg.WaitTimeout)
		duration := durationFlag(cmd, "duration", cfg.LockDuration)

		printVerbose("Waiting up to %v for %s", wait, key)
		acquired, err := mgr.AcquireLock(ctx, cfg.Locker, key, wait, duration)
		if err != nil {
			return err
		}
		if !acquired {
			if holder, herr := mgr.Holder(ctx, key); herr == nil {
				return fmt.Errorf("%w: %s is held by %s", apperrors.ErrLockTimeout, key, holder.Locker)
			}
			return apperrors.ErrLockTimeout
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Acquired %s for %s\n", key, cfg.Locker)
		return nil
	})
}
