// Command cpstats collects competitive-programming statistics from profile URLs.
//
// Usage:
//
//	cpstats codeforces https://codeforces.com/profile/tourist
//	cpstats leetcode https://leetcode.com/u/alice/
//	cpstats gfg https://www.geeksforgeeks.org/user/alice/   # launches Chrome
//	cpstats total --user 42 --format table
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/cpstats/internal/config"
	"github.com/codeGROOVE-dev/cpstats/pkg/scraper"
	"github.com/codeGROOVE-dev/cpstats/pkg/verify"
)

const (
	defaultRetries    = 0
	defaultRetryDelay = time.Second
)

// app carries the flag values and process dependencies shared by every command.
//
//nolint:govet // fieldalignment: intentional layout for readability
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time

	debug          bool
	browserCookies bool
	configPath     string
	dbPath         string
	userID         string
	retries        uint
	retryDelay     time.Duration
	cacheTTL       time.Duration
	timeout        time.Duration

	file   config.FileConfig
	logger *slog.Logger

	// Appended to the loader and verifier options; tests use them to swap
	// variants and transports.
	extra      []scraper.Option
	verifyOpts []verify.Option
}

func newApp() *app {
	return &app{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		getenv:     os.Getenv,
		now:        time.Now,
		retryDelay: defaultRetryDelay,
	}
}

func main() {
	if err := newApp().execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cpstats",
		Short:         "Competitive-programming profile statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.StringVar(&a.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/cpstats/config.toml)")
	pf.StringVar(&a.dbPath, "db", "", "SQLite database (default: $XDG_DATA_HOME/cpstats/cpstats.db)")
	pf.StringVar(&a.userID, "user", "", "user id to store results under")
	pf.UintVar(&a.retries, "retries", defaultRetries, "extra attempts after a transient failure")
	pf.DurationVar(&a.cacheTTL, "cache-ttl", 0, "cache API responses for this long (0 disables)")
	pf.BoolVar(&a.browserCookies, "browser-cookies", false, "send cookies from local browser stores to rendered pages")
	pf.DurationVar(&a.timeout, "timeout", 0, "overall deadline for the command (0 means none)")

	for _, cmd := range newPlatformCmds(a) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newScrapeCmd(a))
	rootCmd.AddCommand(newTotalCmd(a))
	rootCmd.AddCommand(newVerifyCmd(a))
	rootCmd.AddCommand(newTokenCmd(a))

	return rootCmd
}

// execute runs the root command and prints any failure to stderr.
func (a *app) execute(args []string) error {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
	}
	return err
}

// setup loads the config file, applies environment overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	file, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	file.ApplyEnv(a.getenv)
	a.file = file

	if !cmd.Flags().Changed("cache-ttl") {
		a.cacheTTL = config.Or(file.Cache.TTL, a.cacheTTL)
	}
	if a.dbPath == "" {
		a.dbPath = config.Or(file.Store.Path, config.DefaultDBPath())
	}

	level := slog.LevelInfo
	if a.debug {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	return nil
}
