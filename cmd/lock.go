package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jayteealao/objlock/internal/config"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/jayteealao/objlock/internal/state"
	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock <object-id>",
	Short: "Lock an object for this session without waiting",
	Long: `Lock an object for the current session and locker.

Locking an object you already hold in this session refreshes its expiry.
An object held by another locker is never taken over. An object you hold in
another session can be moved to this one with --override.

Examples:
  objlock lock page-42
  objlock lock --type page 42 --version 7
  objlock lock page-42 --override --duration 2h`,
	Args: cobra.ExactArgs(1),
	RunE: runLock,
}

func init() {
	rootCmd.AddCommand(lockCmd)

	lockCmd.Flags().String("type", "", "derive the lock key from this object type and the given id")
	lockCmd.Flags().Int64("version", 0, "object version being edited")
	lockCmd.Flags().Bool("override", false, "take over your own lock from another session")
	lockCmd.Flags().Duration("duration", 0, "lock duration (default is --lock-duration)")
}

func runLock(cmd *cobra.Command, args []string) error {
	objectType, _ := cmd.Flags().GetString("type")
	version, _ := cmd.Flags().GetInt64("version")
	override, _ := cmd.Flags().GetBool("override")

	objectID := resolveObjectID(objectType, args[0])

	return withManager(cmd, func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error {
		duration := durationFlag(cmd, "duration", cfg.LockDuration)

		l, err := mgr.CreateLockFor(ctx, objectID, cfg.Session, cfg.Locker, version, override, duration)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Locked %s for %s (session %s, %s)\n", l.ObjectID, l.Locker, l.Session, formatExpiry(l))
		return nil
	})
}

// resolveObjectID maps (type, id) to a lock key when a type is given.
func resolveObjectID(objectType, id string) string {
	if objectType == "" {
		return id
	}
	return lock.ObjectKey(objectType, id)
}

// durationFlag returns the named duration flag if it was set, else fallback.
// Zero means "until released" either way.
func durationFlag(cmd *cobra.Command, name string, fallback time.Duration) time.Duration {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	d, _ := cmd.Flags().GetDuration(name)
	return d
}

func formatExpiry(l *state.Lock) string {
	if l.ExpiresAt.IsZero() {
		return "held until released"
	}
	return "expires " + l.ExpiresAt.Local().Format(time.RFC3339)
}
