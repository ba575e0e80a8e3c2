package cmd

import (
	"context"
	"fmt"

	"github.com/jayteealao/objlock/internal/config"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/jayteealao/objlock/internal/state"
	"github.com/spf13/cobra"
)

var releaseCmd = &cobra.Command{
	Use:   "release [object-id...]",
	Short: "Release locks held by this session",
	Long: `Release locks held by the current session and locker.

Objects that are not locked, or are locked by someone else, are skipped.

Examples:
  objlock release page-42 page-43
  objlock release --all`,
	Args: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all && len(args) > 0 {
			return fmt.Errorf("--all cannot be combined with object ids")
		}
		if !all && len(args) == 0 {
			return fmt.Errorf("requires at least 1 object id or --all")
		}
		return nil
	},
	RunE: runRelease,
}

func init() {
	rootCmd.AddCommand(releaseCmd)

	releaseCmd.Flags().String("type", "", "derive lock keys from this object type and the given ids")
	releaseCmd.Flags().Bool("all", false, "release every lock held by this session")
}

func runRelease(cmd *cobra.Command, args []string) error {
	objectType, _ := cmd.Flags().GetString("type")
	all, _ := cmd.Flags().GetBool("all")

	objectIDs := make([]string, 0, len(args))
	for _, id := range args {
		objectIDs = append(objectIDs, resolveObjectID(objectType, id))
	}

	return withManager(cmd, func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error {
		var (
			locks []*state.Lock
			err   error
		)
		if all {
			locks, err = mgr.FindLocksByUser(ctx, cfg.Session, cfg.Locker)
		} else {
			locks, err = mgr.FindLocksByObjectIDs(ctx, objectIDs, cfg.Session, cfg.Locker)
		}
		if err != nil {
			return err
		}

		if len(locks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No locks to release")
			return nil
		}

		if err := mgr.ReleaseLocks(ctx, locks); err != nil {
			return err
		}

		for _, l := range locks {
			printVerbose("Released %s", l.ObjectID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Released %d lock(s)\n", len(locks))
		return nil
	})
}
