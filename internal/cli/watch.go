package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/c.mueller/househelper-sync/internal/cluster"
	"github.com/spf13/cobra"
)

func (a *app) watchCmd() *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join the renderer group and redraw the task list on every change",
		Long: `watch renders the cached task list, joins the renderer group and renders
it again each time the sync agent announces a change. It runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openState()
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			render := func(header string) {
				mu.Lock()
				defer mu.Unlock()
				if header != "" {
					fmt.Fprintln(out, header)
				}
				a.renderProjection(out, st.Projection.Read(context.Background()), pendingOnly)
			}

			group, err := a.joinGroup("watch", func(c *cluster.Cluster) {
				c.OnChange(func(ev cluster.ChangeEvent) {
					render(fmt.Sprintf("Changed by %s (%d applied)", ev.NodeID, ev.AppliedCount))
				})
			})
			if err != nil {
				return err
			}
			defer group.Stop()

			render(fmt.Sprintf("Watching as %s on %s", group.LocalNode(), group.Addr()))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "hide completed tasks")
	return cmd
}
