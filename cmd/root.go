// Package cmd provides CLI commands for objlock.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jayteealao/objlock/internal/config"
	apperrors "github.com/jayteealao/objlock/internal/errors"
	"github.com/jayteealao/objlock/internal/lock"
	"github.com/jayteealao/objlock/internal/state"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog"
)

// Version is the current version of objlock.
// Can be overridden at build time: go build -ldflags "-X github.com/jayteealao/objlock/cmd.Version=v1.0.0"
var Version = "v0.1.0"

var cfgFile string

// errInternal is what users see for backend failures; details go to the log.
var errInternal = errors.New("lock operation failed; see log for details")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "objlock",
	Short: "Exclusive checkout of shared design and content objects",
	Long: `objlock arbitrates exclusive checkout of shared design and content objects
between editor sessions.

Locks live in a SQLite database or a directory of lock records, so every
process pointed at the same data directory sees one consistent lock set.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nReceived signal %v, shutting down...\n", sig)
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.objlock/config.yaml)")
	flags.String(config.KeyDataDir, "", "data directory (default is $HOME/.objlock)")
	flags.String(config.KeyObjectsDir, "", "design object directory (default is <data-dir>/objects)")
	flags.String(config.KeyBackend, state.BackendSQLite, "lock store backend: sqlite or filesystem")
	flags.String(config.KeySession, "", "session id (default is <locker>@<hostname>)")
	flags.String(config.KeyLocker, "", "locker id (default is the current user)")
	flags.Duration(config.KeyLockDuration, config.DefaultLockDuration, "default lock duration; 0 holds until released")
	flags.Duration(config.KeyWaitTimeout, config.DefaultWaitTimeout, "how long blocking commands wait for a lock")
	flags.Bool(config.KeyMetrics, false, "print lock metrics in Prometheus format after the command")

	// Bind flags to viper
	for _, key := range []string{
		config.KeyDataDir, config.KeyObjectsDir, config.KeyBackend, config.KeySession,
		config.KeyLocker, config.KeyLockDuration, config.KeyWaitTimeout, config.KeyMetrics,
	} {
		viper.BindPFlag(key, flags.Lookup(key))
	}

	// klog flags (-v, --logtostderr, ...)
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	flags.AddGoFlagSet(klogFlags)
}

// initConfig reads in .env files, config file and ENV variables if set.
func initConfig() {
	config.LoadEnvFiles()
	if err := config.Init(viper.GetViper(), cfgFile); err != nil {
		klog.Warningf("%v", err)
		return
	}
	if used := viper.ConfigFileUsed(); used != "" {
		klog.V(1).Infof("Using config file: %s", used)
	}
}

// loadConfig resolves the effective configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// initStore opens the configured lock store.
func initStore(cfg *config.Config) (state.LockStore, error) {
	store, err := state.Open(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lock store: %w", err)
	}
	return store, nil
}

// initLockManager builds a lock manager over store.
func initLockManager(cfg *config.Config, store state.LockStore) *lock.Manager {
	duration := cfg.LockDuration
	if duration == 0 {
		duration = -1 // until released
	}
	return lock.NewManager(store, lock.Options{DefaultDuration: duration})
}

// withManager runs fn with a lock manager over the configured store, closing
// the store afterwards and turning backend failures into a generic message.
func withManager(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, mgr *lock.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		klog.Errorf("%v", err)
		return errInternal
	}
	defer store.Close()

	mgr := initLockManager(cfg, store)
	klog.V(2).Infof("using %s lock store in %s as %s (session %s)", store.Backend(), cfg.DataDir, cfg.Locker, cfg.Session)

	err = fn(cmd.Context(), cfg, mgr)

	if cfg.Metrics {
		mgr.WriteMetrics(cmd.OutOrStdout())
	}

	return userError(err)
}

// userError passes expected lock outcomes through and hides backend faults.
func userError(err error) error {
	if err == nil {
		return nil
	}
	for _, expected := range []error{
		apperrors.ErrIdentityConflict,
		apperrors.ErrSessionConflict,
		apperrors.ErrLockNotFound,
		apperrors.ErrLockTimeout,
		apperrors.ErrConcurrentModification,
		apperrors.ErrInvalidObjectID,
		apperrors.ErrInvalidSession,
		apperrors.ErrInvalidLocker,
		apperrors.ErrInvalidObjectName,
		context.Canceled,
	} {
		if errors.Is(err, expected) {
			return err
		}
	}
	klog.Errorf("%v", err)
	return errInternal
}

// printVerbose logs progress at verbosity 1.
func printVerbose(format string, args ...any) {
	klog.V(1).Infof(format, args...)
}

// checkContext returns an error if the context is cancelled.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
