package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"templates"},
		Short:   "Manage certificate templates",
	}

	var name string
	upload := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Store a PDF template",
		Long: `Store a PDF template under the application data directory. The display
name defaults to the file name without its extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			display := name
			if display == "" {
				base := filepath.Base(args[0])
				display = strings.TrimSuffix(base, filepath.Ext(base))
			}
			res := a.svc.UploadTemplate(cmd.Context(), display, data)
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintf(w, "uploaded %q as %s\n", res.Template.DisplayName, res.Template.StorageKey)
			})
		},
	}
	upload.Flags().StringVarP(&name, "name", "n", "", "display name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			templates := a.svc.ListTemplates(cmd.Context())
			return a.report(templates, "", func(w io.Writer) {
				if len(templates) == 0 {
					fmt.Fprintln(w, "no templates")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tNAME\tUPLOADED")
				for _, t := range templates {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", t.StorageKey, t.DisplayName, t.UploadedAt.Local().Format(time.DateTime))
				}
				tw.Flush()
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a stored template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := a.svc.DeleteTemplate(cmd.Context(), args[0])
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintf(w, "deleted %s\n", args[0])
			})
		},
	}

	path := &cobra.Command{
		Use:   "path <key>",
		Short: "Print the on-disk path of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := a.svc.GetTemplatePath(cmd.Context(), args[0])
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintln(w, res.FilePath)
			})
		},
	}

	cmd.AddCommand(upload, list, del, path)
	return cmd
}
