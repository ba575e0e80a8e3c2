package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jayteealao/objlock/internal/config"
	apperrors "github.com/jayteealao/objlock/internal/errors"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <object-id>",
	Short: "Show who holds an object",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().String("type", "", "derive the lock key from this object type and the given id")
}

func runStatus(cmd *cobra.Command, args []string) error {
	objectType, _ := cmd.Flags().GetString("type")
	objectID := resolveObjectID(objectType, args[0])

	return withManager(cmd, func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error {
		out := cmd.OutOrStdout()

		l, err := mgr.Holder(ctx, objectID)
		if err != nil {
			if errors.Is(err, apperrors.ErrLockNotFound) {
				fmt.Fprintf(out, "%s is not locked\n", objectID)
				return nil
			}
			return err
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Object:\t%s\n", l.ObjectID)
		fmt.Fprintf(w, "Locker:\t%s\n", l.Locker)
		fmt.Fprintf(w, "Session:\t%s\n", l.Session)
		fmt.Fprintf(w, "Version:\t%d\n", l.Version)
		fmt.Fprintf(w, "Locked:\t%s\n", l.CreatedAt.Local().Format(time.RFC3339))
		if l.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "Expires:\tnever\n")
		} else if l.Expired(time.Now()) {
			fmt.Fprintf(w, "Expires:\t%s (expired)\n", l.ExpiresAt.Local().Format(time.RFC3339))
		} else {
			fmt.Fprintf(w, "Expires:\t%s\n", l.ExpiresAt.Local().Format(time.RFC3339))
		}
		if l.HeldBy(cfg.Session, cfg.Locker) {
			fmt.Fprintf(w, "Yours:\tyes\n")
		}
		return w.Flush()
	})
}
