package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jayteealao/objlock/internal/config"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/jayteealao/objlock/internal/state"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locks held by this session",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withManager(cmd, func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error {
		locks, err := mgr.FindLocksByUser(ctx, cfg.Session, cfg.Locker)
		if err != nil {
			return err
		}

		if len(locks) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No locks held by %s in session %s\n", cfg.Locker, cfg.Session)
			return nil
		}
		return printLocks(cmd.OutOrStdout(), locks)
	})
}

// printLocks writes locks as a table.
func printLocks(out io.Writer, locks []*state.Lock) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OBJECT\tLOCKER\tSESSION\tVERSION\tEXPIRES")
	for _, l := range locks {
		expires := "never"
		if !l.ExpiresAt.IsZero() {
			expires = l.ExpiresAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", l.ObjectID, l.Locker, l.Session, l.Version, expires)
	}
	return w.Flush()
}
