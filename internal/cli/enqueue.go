package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c.mueller/househelper-sync/internal/action"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

const defaultTimerSeconds = 45 * 60

func (a *app) completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <taskId>",
		Short: "Queue completion of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.enqueue(cmd, action.CompleteTask{TaskID: args[0]})
		},
	}

	addAtFlag(cmd)
	return cmd
}

func (a *app) addCmd() *cobra.Command {
	var due string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Queue a new task",
		Long: `Queue a new task. --due accepts a timestamp (RFC 3339) or plain English
such as "tomorrow at 6pm" or "next friday".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := action.AddTask{Title: strings.Join(args, " ")}
			if due != "" {
				dueDate, err := parseDue(due, a.now())
				if err != nil {
					return err
				}
				payload.DueDate = &dueDate
			}
			return a.enqueue(cmd, payload)
		},
	}

	cmd.Flags().StringVar(&due, "due", "", "due date")
	addAtFlag(cmd)
	return cmd
}

func (a *app) timerCmd() *cobra.Command {
	var seconds int
	var taskID string

	cmd := &cobra.Command{
		Use:   "timer <type>",
		Short: "Queue the start of a household timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.enqueue(cmd, action.StartTimer{
				TimerType:       args[0],
				DurationSeconds: seconds,
				TaskID:          taskID,
			})
		},
	}

	cmd.Flags().IntVar(&seconds, "seconds", defaultTimerSeconds, "timer duration in seconds")
	cmd.Flags().StringVar(&taskID, "task", "", "task the timer belongs to")
	addAtFlag(cmd)
	return cmd
}

// addAtFlag lets a caller that retries a delivery pin the action time, so the
// retry maps to the record already queued.
func addAtFlag(cmd *cobra.Command) {
	cmd.Flags().String("at", "", "when the user acted: unix milliseconds or RFC 3339 (default now)")
}

// enqueue validates payload through the same path as records read back from
// disk, then appends it to the shared queue.
func (a *app) enqueue(cmd *cobra.Command, payload action.Payload) error {
	payload, err := action.FromFields(payload.Kind(), action.Fields(payload))
	if err != nil {
		return err
	}

	atFlag, _ := cmd.Flags().GetString("at")
	at, err := parseAt(atFlag, a.now())
	if err != nil {
		return err
	}

	st, err := a.openState()
	if err != nil {
		return err
	}
	defer st.Close()

	rec := action.New(payload, at)
	inserted, err := st.Queue.Enqueue(cmd.Context(), rec)
	if err != nil {
		return fmt.Errorf("failed to queue action: %w", err)
	}

	out := cmd.OutOrStdout()
	if !inserted {
		fmt.Fprintf(out, "Already queued %s %s\n", rec.Kind(), rec.ID)
		return nil
	}
	fmt.Fprintf(out, "Queued %s %s\n", rec.Kind(), rec.ID)
	return nil
}

// parseAt reads the --at value. Empty means now.
func parseAt(text string, now time.Time) (time.Time, error) {
	if text == "" {
		return now, nil
	}
	if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
		if ms <= 0 {
			return time.Time{}, fmt.Errorf("invalid --at %q: must be positive", text)
		}
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: want unix milliseconds or RFC 3339", text)
	}
	return t, nil
}

// parseDue reads an RFC 3339 timestamp or a natural-language date relative
// to now.
func parseDue(text string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date: %w", err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand due date %q", text)
	}
	return r.Time, nil
}
