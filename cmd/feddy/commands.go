package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/feddy/api"
	"github.com/c360studio/feddy/config"
	"github.com/c360studio/feddy/identity"
)

func initCmd(flags *globalFlags) *cobra.Command {
	var (
		apiKey       string
		baseURL      string
		backend      string
		identityPath string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file and create the local identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			cfg.APIKey = strings.TrimSpace(apiKey)
			if baseURL != "" {
				cfg.BaseURL = baseURL
			}
			if backend != "" {
				cfg.Identity.Backend = backend
			}
			if identityPath != "" {
				cfg.Identity.Path = identityPath
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := newLogger(flags.logLevel, false)
			loader := config.NewLoader(logger)

			path := flags.configPath
			switch {
			case path == "" && !force:
				path = loader.UserConfigPath()
				created, err := loader.EnsureUserConfig(cfg)
				if err != nil {
					return err
				}
				if !created {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			default:
				if path == "" {
					path = loader.UserConfigPath()
				}
				if _, err := os.Stat(path); err == nil && !force {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				if err := cfg.SaveToFile(path); err != nil {
					return err
				}
			}

			app, err := NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			user, err := app.sdk.User(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", path)
			fmt.Fprintf(out, "User id: %s\n", user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "Project API key (required)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Service base URL (default https://feddy.app)")
	cmd.Flags().StringVar(&backend, "identity-backend", "", "Identity backend: memory, file, sqlite, nats")
	cmd.Flags().StringVar(&identityPath, "identity-path", "", "Identity file or database path")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	_ = cmd.MarkFlagRequired("api-key")

	return cmd
}

func parseStatusFlag(value string) (api.FeedbackStatus, error) {
	status, err := api.ParseStatus(value)
	if err != nil {
		return "", fmt.Errorf("--status: %w", err)
	}
	return status, nil
}

func listCmd(flags *globalFlags) *cobra.Command {
	var (
		status  string
		refresh bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List feedback for a status",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStatusFlag(status)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), flags, func(app *App) error {
				board := app.sdk.Board()
				if err := board.Select(filter); err != nil {
					return err
				}
				fetchErr := board.Request(cmd.Context(), filter, refresh)
				view := board.View(filter)

				if asJSON {
					if err := writeJSON(cmd.OutOrStdout(), view.Items); err != nil {
						return err
					}
				} else {
					printFeedback(cmd.OutOrStdout(), view.Items)
				}
				return fetchErr
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(api.StatusInReview), "Status filter (in_review, planned, in_progress, completed)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Force a refetch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func submitCmd(flags *globalFlags) *cobra.Command {
	var (
		title       string
		description string
		kind        string
		priority    string
		email       string
		appVersion  string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit new feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App) error {
				result, err := app.sdk.Submit(cmd.Context(), api.FeedbackSubmission{
					Title:       title,
					Description: description,
					Type:        strings.ToUpper(kind),
					Priority:    api.String(priority),
					UserEmail:   api.String(strings.TrimSpace(email)),
					Metadata: api.FeedbackMetadata{
						AppVersion: api.String(appVersion),
					},
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s (%s)\n", result.ID, result.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Short summary")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Details")
	cmd.Flags().StringVar(&kind, "type", "bug", "Type (bug, feature, improvement, question)")
	cmd.Flags().StringVar(&priority, "priority", "medium", "Priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&email, "email", "", "Contact email for this submission")
	cmd.Flags().StringVar(&appVersion, "app-version", "", "Host application version")

	return cmd
}

func voteCmd(flags *globalFlags) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "vote <feedback-id>",
		Short: "Vote for a feedback item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStatusFlag(status)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), flags, func(app *App) error {
				board := app.sdk.Board()
				if err := board.Select(filter); err != nil {
					return err
				}
				if err := board.Request(cmd.Context(), filter, false); err != nil {
					app.logger.Warn("Could not load feedback before voting", "filter", filter, "error", err)
				}

				result, err := app.sdk.Vote(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Voted for %s (%d votes)\n", result.FeedbackID, result.VoteCount)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(api.StatusInReview), "Status filter the item is shown under")

	return cmd
}

func commentsCmd(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		offset int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "comments <feedback-id>",
		Short: "List comments on a feedback item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App) error {
				list, err := app.sdk.Comments(cmd.Context(), args[0], api.CommentPage{
					Limit:  api.Int(limit),
					Offset: api.Int(offset),
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				printComments(cmd.OutOrStdout(), list.Comments, "")
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func commentCmd(flags *globalFlags) *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "comment <feedback-id> <text>...",
		Short: "Comment on a feedback item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App) error {
				content := strings.Join(args[1:], " ")
				result, err := app.sdk.AddComment(cmd.Context(), args[0], content, parentID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Posted comment %s on %s\n", result.CommentID, result.FeedbackID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&parentID, "parent", "", "Reply to this comment id")

	return cmd
}

func userCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Show or change the local user identity",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the current user and configuration state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App) error {
				state, err := app.sdk.State(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), state.User)
				}
				printUser(cmd.OutOrStdout(), state.User)
				fmt.Fprintf(cmd.OutOrStdout(), "Service:  %s\n", state.BaseURL)
				fmt.Fprintf(cmd.OutOrStdout(), "SDK:      %s\n", state.SDKVersion)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	var id, email, name string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update user fields (an empty --id generates a new one)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var update identity.UserUpdate
			if cmd.Flags().Changed("id") {
				update.ID = &id
			}
			if cmd.Flags().Changed("email") {
				update.Email = &email
			}
			if cmd.Flags().Changed("name") {
				update.Name = &name
			}
			if update == (identity.UserUpdate{}) {
				return errors.New("nothing to update: pass --id, --email or --name")
			}

			return withApp(cmd.Context(), flags, func(app *App) error {
				user, err := app.sdk.UpdateUser(cmd.Context(), update)
				if err != nil {
					return err
				}
				printUser(cmd.OutOrStdout(), user)
				return nil
			})
		},
	}
	set.Flags().StringVar(&id, "id", "", "User id")
	set.Flags().StringVar(&email, "email", "", "Email")
	set.Flags().StringVar(&name, "name", "", "Display name")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear the profile and generate a new user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App) error {
				user, err := app.sdk.ResetUser(cmd.Context())
				if err != nil {
					return err
				}
				printUser(cmd.OutOrStdout(), user)
				return nil
			})
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		metricsAddr string
		interval    time.Duration
		status      string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a feedback list fresh and reload config on change",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStatusFlag(status)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, flags, func(app *App) error {
				path := flags.configPath
				if path == "" {
					path = config.NewLoader(app.logger).UserConfigPath()
				}
				return runWatch(ctx, app, cmd.OutOrStdout(), path, filter, interval, metricsAddr)
			})
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "Refresh interval")
	cmd.Flags().StringVar(&status, "status", string(api.StatusInReview), "Status filter to keep fresh")

	return cmd
}

func runWatch(ctx context.Context, app *App, out io.Writer, path string, filter api.FeedbackStatus, interval time.Duration, metricsAddr string) error {
	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		app.logger.Info("Serving metrics", "addr", metricsAddr)
	}

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- app.sdk.WatchConfig(ctx, path)
	}()

	board := app.sdk.Board()
	if err := board.Select(filter); err != nil {
		return err
	}

	refresh := func(force bool) {
		if err := board.Request(ctx, filter, force); err != nil {
			fmt.Fprintf(out, "%s: refresh failed: %v\n", filter, err)
			return
		}
		fmt.Fprintf(out, "%s: %d items\n", filter, len(board.View(filter).Items))
	}
	refresh(false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return <-watchErr
		case err := <-watchErr:
			return err
		case <-ticker.C:
			refresh(true)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printFeedback(w io.Writer, items []api.FeedbackItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No feedback.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVOTES\tTYPE\tPRIORITY\tTITLE")
	for _, item := range items {
		votes := fmt.Sprintf("%d", item.VoteCount)
		if item.UserVoted {
			votes += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.ID, votes, item.Type, item.Priority, item.Title)
	}
	tw.Flush()
}

func printComments(w io.Writer, comments []api.CommentItem, indent string) {
	if len(comments) == 0 && indent == "" {
		fmt.Fprintln(w, "No comments.")
		return
	}
	for _, c := range comments {
		author := c.Author.UserID
		if c.Author.UserName != nil && *c.Author.UserName != "" {
			author = *c.Author.UserName
		}
		fmt.Fprintf(w, "%s[%s] %s (%s): %s\n", indent, c.ID, author, strings.ToLower(string(c.CommentType)), c.Content)
		printComments(w, c.Replies, indent+"    ")
	}
}

func printUser(w io.Writer, user identity.User) {
	fmt.Fprintf(w, "User id:  %s\n", user.ID)
	if user.Name != "" {
		fmt.Fprintf(w, "Name:     %s\n", user.Name)
	}
	if user.Email != "" {
		fmt.Fprintf(w, "Email:    %s\n", user.Email)
	}
}
