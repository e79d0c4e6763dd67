// Package main provides the notes command-line client. Every command opens
// the local store, runs one operation against the sync engine, pushes what
// it can and exits.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abhishek150-rt/offline-notes-app/internal/app"
	"github.com/abhishek150-rt/offline-notes-app/internal/config"
	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	notesync "github.com/abhishek150-rt/offline-notes-app/internal/sync"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// cli carries the global flags shared by every command.
type cli struct {
	configFile string
	offline    bool
	verbose    bool
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "notes",
		Short:         "Local-first notes with background sync",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "config file (default: search ./ and the data dir for notes.yaml)")
	pf.BoolVar(&c.offline, "offline", false, "do not contact the remote")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "log engine activity to stderr")
	pf.BoolVar(&c.jsonOut, "json", false, "print JSON")
	pf.String("data-dir", "", "directory holding notes.db")
	pf.String("remote-url", "", "notes API base URL")
	pf.String("log-level", "", "log level used with --verbose")

	root.AddCommand(
		c.createCmd(),
		c.updateCmd(),
		c.deleteCmd(),
		c.listCmd(),
		c.showCmd(),
		c.syncCmd(),
		c.statusCmd(),
	)
	return root
}

// withApp opens the engine, runs fn and shuts the engine down, flushing
// pending pushes.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(config.Options{
		ConfigFile: c.configFile,
		ConfigDirs: []string{".", config.DefaultDataDir()},
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	logger, closeLog, err := c.logger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := app.Open(cfg, app.Options{Offline: c.offline, Logger: logger})
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.Start(ctx); err != nil {
		a.Shutdown(ctx)
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Shutdown(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (c *cli) logger(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, func() error, error) {
	if cfg.LogFile != "" {
		return cfg.Logger()
	}
	level := logging.LevelWarn
	if c.verbose {
		parsed, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrConfig, "log_level", err)
		}
		level = parsed
	}
	return logging.New(cmd.ErrOrStderr(), level), func() error { return nil }, nil
}

// =====================================================
// Note Commands
// =====================================================

func (c *cli) createCmd() *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				note, err := a.Engine.Create(ctx, args[0], body)
				if err != nil {
					return err
				}
				return c.printNote(cmd.OutOrStdout(), note)
			})
		},
	}
	cmd.Flags().StringVarP(&body, "body", "b", "", "note body")
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	var title, body string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the title or body of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd notesync.NoteUpdate
			if cmd.Flags().Changed("title") {
				upd.Title = &title
			}
			if cmd.Flags().Changed("body") {
				upd.Body = &body
			}
			if upd.Title == nil && upd.Body == nil {
				return apperrors.New(apperrors.ErrInvalid, "nothing to update: pass --title or --body")
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				note, err := a.Engine.Update(ctx, args[0], upd)
				if err != nil {
					return err
				}
				return c.printNote(cmd.OutOrStdout(), note)
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&body, "body", "b", "", "new body")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a note",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Engine.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List notes, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				notes := a.Engine.State().Notes
				out := cmd.OutOrStdout()
				if c.jsonOut {
					if notes == nil {
						notes = []*models.Note{}
					}
					return writeJSON(out, notes)
				}
				if len(notes) == 0 {
					fmt.Fprintln(out, "No notes")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATUS\tUPDATED\tTITLE")
				for _, n := range notes {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.SyncStatus,
						n.UpdatedAt.Local().Format("2006-01-02 15:04:05"), n.Title)
				}
				return tw.Flush()
			})
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				note, err := a.Engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return c.printNote(cmd.OutOrStdout(), note)
			})
		},
	}
}

// =====================================================
// Sync Commands
// =====================================================

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push every unsynced note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Engine.SyncAll(ctx)
				if err != nil {
					return err
				}
				if c.jsonOut {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sync: %s\n", result)
				if result.Failed > 0 {
					return apperrors.Newf(apperrors.ErrSyncFailed, "%d notes failed to sync", result.Failed)
				}
				return nil
			})
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and sync backlog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				st := a.Engine.Status()
				out := cmd.OutOrStdout()
				if c.jsonOut {
					return writeJSON(out, st)
				}
				fmt.Fprintf(out, "Remote:   %s (online: %t)\n", a.Config.RemoteURL, st.Online)
				fmt.Fprintf(out, "Data dir: %s\n", a.Config.DataDir)
				fmt.Fprintf(out, "Notes:    %d\n", st.Notes)
				fmt.Fprintf(out, "Unsynced: %d\n", st.Unsynced)
				fmt.Fprintf(out, "Errored:  %d\n", st.Errored)
				return nil
			})
		},
	}
}

func (c *cli) printNote(w io.Writer, n *models.Note) error {
	if c.jsonOut {
		return writeJSON(w, n)
	}
	fmt.Fprintf(w, "ID:      %s\n", n.ID)
	fmt.Fprintf(w, "Title:   %s\n", n.Title)
	fmt.Fprintf(w, "Status:  %s\n", n.SyncStatus)
	fmt.Fprintf(w, "Updated: %s\n", models.FormatTime(n.UpdatedAt))
	if n.Body != "" {
		fmt.Fprintf(w, "\n%s\n", n.Body)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
