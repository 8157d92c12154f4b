package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/store"
	"github.com/rahul/planflow/internal/workflow"
)

type transitionLister interface {
	Transitions(ctx context.Context, threadID string) ([]store.Transition, error)
}

// NewShowCommand prints the checkpointed state of a thread.
func NewShowCommand(flags *globalFlags) *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "show <thread>",
		Short: "Show a thread's status, plan and report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			st, err := workflow.LoadState(ctx, a.store, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Thread:      %s\n", st.ThreadID)
			fmt.Fprintf(out, "Status:      %s\n", st.Status)
			fmt.Fprintf(out, "Next node:   %s\n", st.Next)
			fmt.Fprintf(out, "Iterations:  %d\n", st.PlanIterations)
			fmt.Fprintf(out, "Transitions: %d\n", st.Transitions)
			fmt.Fprintf(out, "Updated:     %s\n", st.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			if st.Error != "" {
				observability.PrintError(out, st.Error)
			}
			if st.CurrentPlan != nil {
				observability.PrintPlan(out, st.CurrentPlan)
			}
			if st.FinalReport != "" {
				observability.PrintReport(out, st.FinalReport)
			}

			if !history {
				return nil
			}
			tl, ok := a.store.(transitionLister)
			if !ok {
				return fmt.Errorf("store %q does not record transitions", a.cfg.Memory.Type)
			}
			trs, err := tl.Transitions(ctx, st.ThreadID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tFROM\tTO")
			for _, tr := range trs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", tr.At.Local().Format("15:04:05.000"), tr.From, tr.To)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "list node transitions")
	return cmd
}

// NewThreadsCommand lists stored threads.
func NewThreadsCommand(flags *globalFlags) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List stored threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			infos, err := a.store.List(cmd.Context(), status)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "THREAD\tSTATUS\tNODE\tUPDATED")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.ThreadID, info.Status, info.Node, info.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (running, suspended, completed, failed)")
	return cmd
}

// NewDeleteCommand removes a thread's checkpoints.
func NewDeleteCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread>...",
		Short: "Delete stored threads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			for _, id := range args {
				if err := a.store.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("deleting %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		},
	}
}
