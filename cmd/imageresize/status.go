package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"imageresize/cache"
	"imageresize/database"
	"imageresize/models"
	"imageresize/repository"
)

var errNoStatusSource = errors.New("status needs REDIS_ADDR or DATABASE_URL")

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status RUN_ID",
		Short: "Show what is recorded about a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			out := cmd.OutOrStdout()
			if ctx.cfg.RedisAddr == "" && ctx.cfg.DatabaseURL == "" {
				return errNoStatusSource
			}

			if ctx.cfg.DatabaseURL != "" {
				db, err := database.Connect(cmd.Context(), ctx.cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()

				run, err := repository.NewPostgresRepo(db).GetRun(cmd.Context(), runID)
				switch {
				case errors.Is(err, repository.ErrRunNotFound):
					fmt.Fprintf(out, "No stored benchmark run %s\n", runID)
				case err != nil:
					return fmt.Errorf("load run %s: %w", runID, err)
				default:
					printResult(cmd, run)
				}
			}

			if ctx.cfg.RedisAddr != "" {
				conn, err := database.ConnectCache(cmd.Context(), ctx.cfg.RedisAddr)
				if err != nil {
					return err
				}
				defer conn.Close()

				statuses, err := cache.NewStatusCache(conn).Run(cmd.Context(), runID)
				if err != nil {
					return err
				}
				renderStatuses(out, runID, statuses)
			}
			return nil
		},
	}
}

func renderStatuses(w io.Writer, runID string, statuses map[string]models.Status) {
	if len(statuses) == 0 {
		fmt.Fprintf(w, "No cached image statuses for run %s\n", runID)
		return
	}

	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Image", "Status"})
	counts := make(map[models.Status]int)
	for _, id := range ids {
		tw.AppendRow(table.Row{id, statuses[id]})
		counts[statuses[id]]++
	}
	tw.Render()
	fmt.Fprintf(w, "%d of %d images saved\n", counts[models.StatusSaved], len(ids))
}
