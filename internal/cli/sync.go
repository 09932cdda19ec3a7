package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/c.mueller/househelper-sync/internal/syncer"
	"github.com/c.mueller/househelper-sync/internal/taskstore"
	"github.com/spf13/cobra"
)

func (a *app) syncCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now",
		Long: `Apply queued actions to the task service and refresh the cached task list.
Exits without doing anything if another process is already syncing. When
renderer group seeds are configured, a cycle that changed the task list is
announced to the group.

With --remote, no cycle runs here; the sync agent in the renderer group is
asked to run one instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				return a.requestRemoteSync(cmd)
			}

			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			notifiers := syncer.Notifiers{syncer.LogNotifier{Logger: slog.Default()}}
			if a.hasSeeds() {
				group, err := a.joinGroup("sync", nil)
				if err != nil {
					return err
				}
				defer leaveGroup(group)
				notifiers = append(notifiers, group)
			}

			timeout := a.v.GetDuration(keyApplyTimeout)
			store := taskstore.NewClient(a.v.GetString(keyAuthority), timeout)

			synchronizer := st.NewSynchronizer(store, notifiers, syncer.Options{
				Freshness:    a.v.GetDuration(keyFreshness),
				ApplyTimeout: timeout,
				Now:          a.now,
			})

			result, err := synchronizer.RunSyncCycle(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: applied %d, retained %d, dropped %d\n",
				result.Status, result.AppliedCount, result.RetainedCount, result.DroppedCount)
			if result.ProjectionRefreshed {
				fmt.Fprintln(out, "Task list refreshed")
			}
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "ask the sync agent in the renderer group to sync")
	return cmd
}

func (a *app) requestRemoteSync(cmd *cobra.Command) error {
	if !a.hasSeeds() {
		return errors.New("--remote needs --seed or cluster.seeds")
	}

	group, err := a.joinGroup("sync", nil)
	if err != nil {
		return err
	}
	defer leaveGroup(group)

	if err := group.RequestSync("widgetctl sync --remote"); err != nil {
		return fmt.Errorf("failed to request sync: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sync requested from %d member(s)\n", group.MemberCount()-1)
	return nil
}
