package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lumina/pkg/orch"
)

func newSendCmd() *cobra.Command {
	var (
		threadID    string
		autoApprove bool
	)
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return runSend(cmd.Context(), cfgPath, threadID, args[0], autoApprove)
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "cli", "thread id to append to")
	cmd.Flags().BoolVar(&autoApprove, "yes", false, "approve tool calls without prompting")
	return cmd
}

func runSend(ctx context.Context, cfgPath, threadID, message string, autoApprove bool) error {
	a, err := buildApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orch.HandleMessage(ctx, threadID, message)
	for res != nil && res.State == orch.StateAwaitingApproval && res.Approval != nil {
		approve := autoApprove
		if !autoApprove {
			approve, err = promptApproval(res)
			if err != nil {
				return err
			}
		}
		res, err = a.orch.ResolveApproval(ctx, threadID, res.Approval.ID, approve)
	}
	if res == nil {
		return err
	}

	fmt.Println(res.Answer)
	if res.State == orch.StateFailed && err != nil {
		return err
	}
	return nil
}

func promptApproval(res *orch.Result) (bool, error) {
	fmt.Fprintf(os.Stderr, "Tool %s wants to run: %s\nApprove? [y/N] ",
		res.Approval.ToolName, res.Approval.Reason)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read approval answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
