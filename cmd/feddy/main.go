// Package main provides the feddy binary: a command line host for the feddy
// feedback SDK. It lists, submits, votes on and comments on feedback, and
// manages the local user identity.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/feddy/identity"
)

const (
	Version   = identity.SDKVersion
	BuildTime = "dev"
	appName   = "feddy"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Feedback client for feddy",
		Long: `feddy talks to a feddy feedback service.

It can:
- list feedback by status (in_review, planned, in_progress, completed)
- submit new feedback and vote on existing items
- read and post comments
- manage the local user identity used for votes and comments

Configuration is read from ~/.config/feddy/config.yaml, a feddy.yaml in the
current or a parent directory, and the FEDDY_API_KEY / FEDDY_BASE_URL
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		initCmd(flags),
		listCmd(flags),
		submitCmd(flags),
		voteCmd(flags),
		commentsCmd(flags),
		commentCmd(flags),
		userCmd(flags),
		watchCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// newLogger builds the stderr text logger. debug forces debug level.
func newLogger(logLevel string, debug bool) *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
