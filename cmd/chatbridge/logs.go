package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meikuraledutech/chatbridge"
)

func newLogsCmd(a *app) *cobra.Command {
	var (
		session string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent model requests from the request log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			logs, err := store.ListRequestLogs(cmd.Context(), session, limit)
			if err != nil {
				return err
			}
			return printLogs(cmd.OutOrStdout(), logs)
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "Only show requests of this session id.")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of requests to show.")
	return cmd
}

func printLogs(out io.Writer, logs []chatbridge.RequestLog) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tMODEL\tMODE\tSTATUS\tTOKENS\tPROMPT")
	for _, l := range logs {
		status := l.FinalStatus
		if l.FailReason != "" {
			status += "/" + l.FailReason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			l.CreatedAt.Format(time.DateTime),
			l.SessionID,
			l.Model,
			l.Mode,
			status,
			l.Usage.TotalTokens,
			abbreviate(l.Prompt, 40),
		)
	}
	return w.Flush()
}

// abbreviate shortens s to at most n runes on one line.
func abbreviate(s string, n int) string {
	runes := []rune(s)
	for i, r := range runes {
		if r == '\n' || r == '\t' {
			runes[i] = ' '
		}
	}
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n-1]) + "…"
}
