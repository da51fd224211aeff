package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the generation history",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List generated certificates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := a.svc.LoadHistory(cmd.Context())
			if limit > 0 && len(res.Records) > limit {
				res.Records = res.Records[:limit]
			}
			return a.report(res, res.Error, func(w io.Writer) {
				if len(res.Records) == 0 {
					fmt.Fprintln(w, "no history")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tTEMPLATE\tRECIPIENT\tSTATUS\tPATH")
				for _, r := range res.Records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.Timestamp.Local().Format(time.DateTime), r.TemplateName, r.RecipientName, r.Status, r.Path)
				}
				tw.Flush()
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every history entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := a.svc.ClearHistory(cmd.Context())
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintln(w, "history cleared")
			})
		},
	}

	cmd.AddCommand(list, clearCmd)
	return cmd
}
