package cmd

import (
	"fmt"

	"github.com/jayteealao/objlock/internal/lock"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key <type> <id> | key --path <path>",
	Short: "Print the lock key for an object or path",
	Long: `Print the lock key derived from an object type and id, or from a
filesystem path. Equal inputs always give equal keys.

Examples:
  objlock key page 42
  objlock key --path ./objects/homepage`,
	Args: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		if path != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runKey,
}

func init() {
	rootCmd.AddCommand(keyCmd)

	keyCmd.Flags().String("path", "", "derive the key from a filesystem path")
}

func runKey(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	if path != "" {
		fmt.Fprintln(cmd.OutOrStdout(), lock.PathKey(path))
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), lock.ObjectKey(args[0], args[1]))
	return nil
}
