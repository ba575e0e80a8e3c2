package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jayteealao/objlock/internal/config"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/jayteealao/objlock/internal/objects"
	"github.com/jayteealao/objlock/internal/validate"
	"github.com/spf13/cobra"
)

var replaceCmd = &cobra.Command{
	Use:   "replace <name> <source-dir>",
	Short: "Replace a design object's contents under its lock",
	Long: `Replace the named design object with the contents of a directory.

The object's lock is held for the whole replacement. The previous contents
are moved aside first and restored if the copy fails.

Examples:
  objlock replace homepage ./build/homepage
  objlock replace homepage ./build/homepage --wait 30s`,
	Args: cobra.ExactArgs(2),
	RunE: runReplace,
}

var objectsCmd = &cobra.Command{
	Use:   "objects [name]",
	Short: "List design objects, or the files of one object",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runObjects,
}

func init() {
	rootCmd.AddCommand(replaceCmd)
	rootCmd.AddCommand(objectsCmd)

	replaceCmd.Flags().Duration("wait", 0, "how long to wait for the object lock (default is --wait-timeout)")
}

func runReplace(cmd *cobra.Command, args []string) error {
	name, source := args[0], args[1]

	if err := validate.ObjectName(name); err != nil {
		return err
	}
	if err := validate.Directory(source); err != nil {
		return fmt.Errorf("invalid source directory: %w", err)
	}
	source, err := validate.ExpandPath(source)
	if err != nil {
		return err
	}

	return withManager(cmd, func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error {
		store, err := objects.New(cfg.ObjectsDir, mgr, objects.Options{
			WaitTimeout:  durationFlag(cmd, "wait", cfg.WaitTimeout),
			LockDuration: cfg.LockDuration,
			OnVerbose: func(msg string) {
				printVerbose("%s", msg)
			},
		})
		if err != nil {
			return err
		}

		if err := checkContext(ctx); err != nil {
			return err
		}

		if err := store.Replace(ctx, cfg.Locker, name, objects.CopyTree(source)); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Replaced %s from %s\n", name, source)
		return nil
	})
}

func runObjects(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := objects.New(cfg.ObjectsDir, nil, objects.Options{})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		files, err := store.Read(args[0])
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
		return nil
	}

	names, err := store.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "No objects")
		return nil
	}
	fmt.Fprintln(out, strings.Join(names, "\n"))
	return nil
}
