package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/lk2023060901/attachment-store/internal/attachment/archive"
	"github.com/lk2023060901/attachment-store/internal/attachment/importer"
	"github.com/lk2023060901/attachment-store/internal/attachment/types"
	"github.com/lk2023060901/attachment-store/internal/data"
	"github.com/lk2023060901/attachment-store/internal/pkg/injector"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// importLockKey serialises migration runs across hosts
const importLockKey = "attachment:import:lock"

func (c *cli) modeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show the active storage mode and flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				printMode(ctx, cmd.OutOrStdout(), app)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <fs-only|fs-primary|remote-primary|remote-only>",
		Short: "Write the flags selecting a mode to redis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := types.ParseMode(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				flags, err := redisFlags(app)
				if err != nil {
					return err
				}
				if err := flags.Apply(ctx, types.FlagsFor(mode)); err != nil {
					return fmt.Errorf("failed to write flags: %w", err)
				}
				printMode(ctx, cmd.OutOrStdout(), app)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Delete the mode flags from redis so the configured flags apply again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				flags, err := redisFlags(app)
				if err != nil {
					return err
				}
				if err := flags.Reset(ctx); err != nil {
					return fmt.Errorf("failed to clear flags: %w", err)
				}
				printMode(ctx, cmd.OutOrStdout(), app)
				return nil
			})
		},
	})
	return cmd
}

func redisFlags(app *injector.App) (*data.RedisFlagSource, error) {
	flags, ok := app.Flags.(*data.RedisFlagSource)
	if !ok {
		return nil, errors.New("flags are static; enable redis or edit attachments.flags in the config")
	}
	return flags, nil
}

func printMode(ctx context.Context, w io.Writer, app *injector.App) {
	var overrides map[string]bool
	if flags, ok := app.Flags.(*data.RedisFlagSource); ok {
		var err error
		if overrides, err = flags.Overrides(ctx); err != nil {
			app.Logger.Warn("failed to read flag overrides", zap.Error(err))
		}
	}

	mode := app.Store.Mode(ctx)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "mode\t%s\n", mode)
	for _, flag := range []string{types.FlagFSOnly, types.FlagFSPrimary, types.FlagRemotePrimary, types.FlagRemoteOnly} {
		source := "config"
		if _, ok := overrides[flag]; ok {
			source = "redis"
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\n", flag, app.Flags.IsEnabled(ctx, flag), source)
	}
	_ = tw.Flush()
}

func (c *cli) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report backend health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				w := cmd.OutOrStdout()
				unhealthy := false
				for _, report := range []*types.HealthReport{app.FileSystem.Errors(ctx), app.Remote.Errors(ctx)} {
					if report == nil {
						continue
					}
					for _, msg := range report.Messages {
						fmt.Fprintf(w, "%s: %s\n", report.Backend, msg)
					}
				}
				if err := app.Data.DB.HealthCheck(ctx); err != nil {
					unhealthy = true
					fmt.Fprintf(w, "database: %v\n", err)
				}
				if report := app.Store.Errors(ctx); report != nil {
					unhealthy = true
					fmt.Fprintf(w, "primary backend %s is unhealthy in mode %s\n", report.Backend, app.Store.Mode(ctx))
				}
				if unhealthy {
					return errors.New("attachment storage is unhealthy")
				}
				fmt.Fprintf(w, "ok (mode %s)\n", app.Store.Mode(ctx))
				return nil
			})
		},
	}
}

func (c *cli) migrateCommand() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every filesystem attachment into the active storage mode",
		Long: `Walks all attachment records and writes their filesystem bytes through the
storage coordinator. The first failure aborts the run; re-running from the
start is safe because writes overwrite by attachment id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if concurrency <= 0 {
				concurrency = c.config.Attachments.ImportConcurrency
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				run := func() error { return c.migrate(ctx, app, concurrency) }
				if app.Data.Redis == nil {
					return run()
				}
				return app.Data.Redis.WithLock(ctx, importLockKey, c.config.Attachments.ImportLockTTL, run)
			})
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "attachments copied in parallel (default attachments.import_concurrency)")
	return cmd
}

func (c *cli) migrate(ctx context.Context, app *injector.App, concurrency int) error {
	total, err := app.Attachments.Count(ctx)
	if err != nil {
		return err
	}

	progress := importer.NewProgress(total, c.log)
	err = app.Importer.Import(ctx, app.Attachments.All(ctx), concurrency, progress.Record)

	// 次要后端写入完成后再退出
	app.Store.Wait()
	if err != nil {
		return err
	}

	c.log.Info("migration complete",
		zap.Int64("attachments", progress.Succeeded()),
		zap.String("mode", app.Store.Mode(ctx).String()))
	return nil
}

func (c *cli) zipCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "zip <issue-id>",
		Short: "Bundle all attachments of an issue into a zip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issueID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid issue id %q", args[0])
			}
			if output == "" {
				output = fmt.Sprintf("issue-%d.zip", issueID)
			}

			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				metas, err := app.Attachments.ListByIssue(ctx, issueID)
				if err != nil {
					return err
				}
				if len(metas) == 0 {
					return fmt.Errorf("issue %d has no attachments", issueID)
				}

				tmpDir, err := app.FileSystem.TempDirectory()
				if err != nil {
					return err
				}
				name, err := app.Archive.Build(ctx, tmpDir, metas)
				if err != nil {
					return err
				}
				if err := moveFile(name, output); err != nil {
					_ = os.Remove(name)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d attachments to %s\n", len(metas), output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default issue-<id>.zip)")
	return cmd
}

// moveFile renames, falling back to copy when src and dst are on different devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func (c *cli) zipListCommand() *cobra.Command {
	var (
		maxEntries int
		criteria   string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "zip-list <file>",
		Short: "List the entries of a zip attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crit, ok := archive.ParseCriteria(criteria)
			if !ok {
				return fmt.Errorf("unknown criteria %q (files, dirs, all)", criteria)
			}
			if maxEntries <= 0 {
				maxEntries = c.config.Attachments.ZipMaxEntries
			}
			if !archive.IsZip(args[0]) {
				return fmt.Errorf("%s is not a zip file", args[0])
			}

			listing, err := archive.List(args[0], maxEntries, crit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(listing)
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tNAME\tSIZE\tTYPE\tMODIFIED")
			for _, e := range listing.Entries {
				kind := e.MimeType
				if e.Directory {
					kind = "directory"
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", e.Index, e.AbbreviatedName, e.Size, kind, e.Modified.Format("2006-01-02 15:04"))
			}
			_ = tw.Flush()
			if listing.IsMoreAvailable {
				fmt.Fprintf(w, "... showing %d of %d entries\n", len(listing.Entries), listing.TotalNumberOfEntriesAvailable)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxEntries, "max", 0, "maximum entries to list (default attachments.zip_max_entries)")
	cmd.Flags().StringVar(&criteria, "criteria", "all", "files, dirs or all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (c *cli) zipExtractCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "zip-extract <file> <index>",
		Short: "Extract one entry of a zip attachment by index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}

			rc, entry, err := archive.OpenEntry(args[0], index)
			if err != nil {
				return err
			}
			defer rc.Close()

			if entry.Directory {
				return fmt.Errorf("entry %d is a directory", index)
			}
			if output == "" {
				output = filepath.Base(entry.Name)
			}
			if output == "-" {
				_, err = io.Copy(cmd.OutOrStdout(), rc)
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, rc); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default entry name)")
	return cmd
}

func (c *cli) moveIssueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move-issue <issue-id> <old-issue-key> <new-issue-key>",
		Short: "Relocate an issue's attachments after it moved to another project",
		Long: `Moves the attachment files of an issue from the directory of its old key
to the directory of its new key. Run it after the issue record has been
re-keyed; the old key is needed because the database no longer holds it.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			issueID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid issue id %q", args[0])
			}
			oldKey, newKey := args[1], args[2]
			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				moved, err := app.Service.MoveIssueAttachments(ctx, issueID, oldKey, newKey)
				app.Store.Wait()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "moved %d attachments from %s to %s\n", moved, oldKey, newKey)
				return nil
			})
		},
	}
}

func (c *cli) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <issue-id>",
		Short: "List an issue's attachments whose bytes are missing from the active store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issueID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid issue id %q", args[0])
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				missing, err := app.Service.Missing(ctx, issueID)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, meta := range missing {
					fmt.Fprintf(w, "missing %d %s\n", meta.ID, meta.Filename)
				}
				if len(missing) > 0 {
					return fmt.Errorf("%d attachments of issue %d are missing in mode %s", len(missing), issueID, app.Store.Mode(ctx))
				}
				fmt.Fprintf(w, "all attachments of issue %d present\n", issueID)
				return nil
			})
		},
	}
}

func (c *cli) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <attachment-id>...",
		Short: "Delete attachments, bytes first and then their records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, len(args))
			for i, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid attachment id %q", arg)
				}
				ids[i] = id
			}
			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				defer app.Store.Wait()
				for _, id := range ids {
					if err := app.Service.Delete(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
				}
				return nil
			})
		},
	}
}

func (c *cli) deleteIssueDirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-issue-dir <issue-key>",
		Short: "Remove an issue's attachment directory if it is empty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, app *injector.App) error {
				return app.Service.DeleteIssueDirectory(ctx, args[0])
			})
		},
	}
}
