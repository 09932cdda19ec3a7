package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/c.mueller/househelper-sync/internal/action"
	"github.com/c.mueller/househelper-sync/internal/projection"
	"github.com/spf13/cobra"
)

func (a *app) tasksCmd() *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Print the cached task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			a.renderProjection(cmd.OutOrStdout(), st.Projection.Read(cmd.Context()), pendingOnly)
			return nil
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "hide completed tasks")
	return cmd
}

// renderProjection prints snap the way a widget would draw it.
func (a *app) renderProjection(out io.Writer, snap projection.Snapshot, pendingOnly bool) {
	if !snap.Synced() {
		fmt.Fprintln(out, "Never synced")
		return
	}

	stale := ""
	if snap.StaleAt(a.now(), a.v.GetDuration(keyFreshness)) {
		stale = " (stale)"
	}
	fmt.Fprintf(out, "Last synced %s%s\n", snap.LastSyncedAt.Local().Format(time.DateTime), stale)

	for _, task := range snap.Tasks {
		if pendingOnly && task.IsCompleted {
			continue
		}
		mark := " "
		if task.IsCompleted {
			mark = "x"
		}
		line := fmt.Sprintf("[%s] %s  %s", mark, task.Title, task.ID)
		if task.DueDate != nil {
			line += "  due " + task.DueDate.Local().Format(time.DateTime)
		}
		fmt.Fprintln(out, line)
	}
}

func (a *app) pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List actions waiting for the next sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			batch, err := st.Queue.DrainAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read queue: %w", err)
			}

			out := cmd.OutOrStdout()
			if batch.Empty() {
				fmt.Fprintln(out, "Nothing queued")
				return nil
			}

			for _, rec := range batch.Records {
				fmt.Fprintf(out, "%s  %-13s  %s  %s\n",
					rec.CreatedAt.Local().Format(time.DateTime), rec.Kind(), rec.ID, formatFields(action.Fields(rec.Payload)))
			}
			for _, m := range batch.Malformed {
				fmt.Fprintf(out, "malformed  %s  %s\n", m.ID, m.Reason)
			}
			return nil
		},
	}
}

func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
