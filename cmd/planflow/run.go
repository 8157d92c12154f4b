package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rahul/planflow/internal/observability"
	"github.com/rahul/planflow/internal/workflow"
)

type runFlags struct {
	threadID   string
	autoAccept bool
	output     string
}

// NewRunCommand starts a new request, or a follow-up on a finished thread.
func NewRunCommand(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <question>",
		Short: "Ask a question and review the research plan",
		Example: `  planflow run "Suggest three Napa Cabernets under $60"
  planflow run --auto-accept --output report.md "Compare Barolo and Barbaresco"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			engine, err := a.newEngine(func(o *workflow.Options) {
				if rf.autoAccept {
					o.AutoAcceptPlan = true
				}
			})
			if err != nil {
				return err
			}

			threadID := rf.threadID
			if threadID == "" {
				threadID = uuid.NewString()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			observability.PrintBanner(out, Version)

			res, err := engine.Run(ctx, threadID, strings.Join(args, " "))
			if err != nil {
				return interrupted(out, threadID, err)
			}
			return review(ctx, engine, res, cmd.InOrStdin(), out, rf.output)
		},
	}

	cmd.Flags().StringVarP(&rf.threadID, "thread", "t", "", "thread id (default: a new uuid)")
	cmd.Flags().BoolVar(&rf.autoAccept, "auto-accept", false, "accept generated plans without review")
	cmd.Flags().StringVarP(&rf.output, "output", "o", "", "write the final report to this file")

	return cmd
}

type resumeFlags struct {
	accept bool
	edit   string
	token  string
	cont   bool
	output string
}

// NewResumeCommand delivers plan feedback to a suspended thread, or
// continues a thread whose run was interrupted.
func NewResumeCommand(flags *globalFlags) *cobra.Command {
	rf := &resumeFlags{}

	cmd := &cobra.Command{
		Use:   "resume <thread>",
		Short: "Accept or edit a suspended plan",
		Example: `  planflow resume 1b9d6bcd --accept
  planflow resume 1b9d6bcd --edit "only French wines"
  planflow resume 1b9d6bcd --continue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			switch {
			case rf.cont:
			case rf.token != "":
				token = rf.token
			case rf.edit != "":
				token = workflow.TokenEditPlan + " " + rf.edit
			case rf.accept:
				token = workflow.TokenAccepted
			default:
				return fmt.Errorf("one of --accept, --edit, --token or --continue is required")
			}

			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			engine, err := a.newEngine()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			threadID := args[0]
			var res *workflow.Result
			if rf.cont {
				res, err = engine.Continue(ctx, threadID)
			} else {
				res, err = engine.Resume(ctx, threadID, token)
			}
			out := cmd.OutOrStdout()
			if err != nil {
				return interrupted(out, threadID, err)
			}
			return review(ctx, engine, res, cmd.InOrStdin(), out, rf.output)
		},
	}

	cmd.Flags().BoolVar(&rf.accept, "accept", false, "accept the pending plan")
	cmd.Flags().StringVar(&rf.edit, "edit", "", "ask the planner to revise the plan")
	cmd.Flags().StringVar(&rf.token, "token", "", "raw feedback token")
	cmd.Flags().BoolVar(&rf.cont, "continue", false, "continue an interrupted run")
	cmd.Flags().StringVarP(&rf.output, "output", "o", "", "write the final report to this file")
	cmd.MarkFlagsMutuallyExclusive("accept", "edit", "token", "continue")

	return cmd
}

// review prints res and, when in is a terminal, keeps asking for plan
// feedback until the thread leaves the suspended state.
func review(ctx context.Context, engine *workflow.Engine, res *workflow.Result, in io.Reader, out io.Writer, output string) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = observability.IsInteractive(f)
	}
	reader := bufio.NewReader(in)

	for res.Status == workflow.StatusSuspended {
		if res.Suspension != nil {
			observability.PrintPlan(out, res.Suspension.Plan)
		}
		if !interactive {
			fmt.Fprintf(out, "Plan awaiting review. Run `planflow resume %s --accept` or `--edit \"...\"`.\n", res.ThreadID)
			return nil
		}

		token, err := askFeedback(reader, out)
		if err != nil {
			return err
		}
		if token == "" {
			fmt.Fprintf(out, "Thread %s left suspended.\n", res.ThreadID)
			return nil
		}

		threadID := res.ThreadID
		res, err = engine.Resume(ctx, threadID, token)
		if err != nil {
			return interrupted(out, threadID, err)
		}
	}

	return printResult(res, out, output)
}

// askFeedback prompts until the answer maps to a feedback token. An empty
// token means the user quit or input ended.
func askFeedback(reader *bufio.Reader, out io.Writer) (string, error) {
	for {
		fmt.Fprint(out, "Accept plan? [Y]es / [e]dit <changes> / [q]uit: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if errors.Is(err, io.EOF) && strings.TrimSpace(line) == "" {
			return "", nil
		}

		token, quit, ok := reviewToken(line)
		switch {
		case quit:
			return "", nil
		case ok:
			return token, nil
		}
		fmt.Fprintln(out, "Please answer y, e <changes> or q.")
		if errors.Is(err, io.EOF) {
			return "", nil
		}
	}
}

// reviewToken maps a console answer to a feedback token. ok is false for
// answers that carry no usable feedback.
func reviewToken(line string) (token string, quit, ok bool) {
	answer := strings.TrimSpace(line)
	lower := strings.ToLower(answer)
	switch {
	case lower == "q" || lower == "quit":
		return "", true, false
	case lower == "" || lower == "y" || lower == "yes":
		return workflow.TokenAccepted, false, true
	case lower == "e" || lower == "edit" || strings.HasPrefix(lower, "e ") || strings.HasPrefix(lower, "edit "):
		_, changes, _ := strings.Cut(answer, " ")
		changes = strings.TrimSpace(changes)
		if changes == "" {
			return "", false, false
		}
		return workflow.TokenEditPlan + " " + changes, false, true
	case workflow.ValidFeedback(answer):
		return answer, false, true
	}
	return "", false, false
}

func printResult(res *workflow.Result, out io.Writer, output string) error {
	switch res.Status {
	case workflow.StatusCompleted:
		if res.FinalReport == "" {
			fmt.Fprintln(out, res.Reply)
			return nil
		}
		observability.PrintReport(out, res.FinalReport)
		if output != "" {
			if err := renameio.WriteFile(output, []byte(res.FinalReport+"\n"), 0o644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Fprintf(out, "Report written to %s\n", output)
		}
	case workflow.StatusFailed:
		observability.PrintError(out, res.Reply)
		return res.Err
	default:
		fmt.Fprintln(out, res.Reply)
	}
	return nil
}

// interrupted explains how to pick a thread back up after an engine error.
func interrupted(out io.Writer, threadID string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(out, "\nInterrupted. Run `planflow resume %s --continue` to pick up where it stopped.\n", threadID)
	case errors.Is(err, workflow.ErrThreadBusy):
		fmt.Fprintf(out, "Thread %s has an unfinished run. Use `planflow resume %s --continue`.\n", threadID, threadID)
	case errors.Is(err, workflow.ErrSuspended):
		fmt.Fprintf(out, "Thread %s is waiting for plan review. Use `planflow resume`.\n", threadID)
	}
	return err
}
