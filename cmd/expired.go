package cmd

import (
	"context"
	"fmt"

	"github.com/jayteealao/objlock/internal/config"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/spf13/cobra"
)

var expiredCmd = &cobra.Command{
	Use:   "expired",
	Short: "List locks past their expiry",
	Long: `List locks past their expiry. Nothing is released; use 'objlock reap'
to release them.`,
	Args: cobra.NoArgs,
	RunE: runExpired,
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Release locks past their expiry",
	Args:  cobra.NoArgs,
	RunE:  runReap,
}

func init() {
	rootCmd.AddCommand(expiredCmd)
	rootCmd.AddCommand(reapCmd)
}

func runExpired(cmd *cobra.Command, args []string) error {
	return withManager(cmd, func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error {
		locks, err := mgr.FindExpiredLocks(ctx)
		if err != nil {
			return err
		}

		if len(locks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No expired locks")
			return nil
		}
		return printLocks(cmd.OutOrStdout(), locks)
	})
}

func runReap(cmd *cobra.Command, args []string) error {
	return withManager(cmd, func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error {
		n, err := mgr.ReapExpired(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Released %d expired lock(s)\n", n)
		return nil
	})
}
