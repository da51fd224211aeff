package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RCOEM-Google-DSC/enso/batch"
	"github.com/RCOEM-Google-DSC/enso/service"
)

func (a *app) generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen"},
		Short:   "Generate certificates from a stored template",
		Long: `Generate certificates from a stored template. The saved style is used
unless overridden with the style flags.`,
	}

	var noOpen bool
	preview := &cobra.Command{
		Use:   "preview <key> <name>",
		Short: "Render one certificate to a temporary file and open it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			style, err := a.style(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			a.viewer.disabled = noOpen
			res := a.svc.GeneratePreview(cmd.Context(), args[0], args[1], style)
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintln(w, res.Path)
			})
		},
	}
	addStyleFlags(preview)
	preview.Flags().BoolVar(&noOpen, "no-open", false, "write the preview without opening a viewer")

	save := &cobra.Command{
		Use:   "save <key> <name>",
		Short: "Render one certificate and save it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			display, err := a.svc.TemplateDisplayName(ctx, args[0])
			if err != nil {
				return err
			}
			style, err := a.style(ctx, cmd)
			if err != nil {
				return err
			}
			a.dialogs.savePath, _ = cmd.Flags().GetString("out")
			a.announce(ctx, "Generating a certificate", display)
			res := a.svc.GenerateSaveSingle(ctx, args[0], display, args[1], style)
			return a.report(res, res.Error, func(w io.Writer) {
				if res.Reason == service.ReasonCancelled {
					fmt.Fprintln(w, "cancelled")
					return
				}
				fmt.Fprintf(w, "saved %s\n", res.Path)
			})
		},
	}
	addStyleFlags(save)
	save.Flags().StringP("out", "o", "", "output file or directory (prompted when empty)")

	var namesFile string
	bulk := &cobra.Command{
		Use:   "bulk <key> [name...]",
		Short: "Render one certificate per name into a folder",
		Long: `Render one certificate per name into <folder>/Certificate/<template>/.
Names come from the arguments and from --names (a .txt, .csv or .json file).
Empty names are skipped and a failed name does not stop the run.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			names := args[1:]
			if namesFile != "" {
				fromFile, err := batch.ReadNames(namesFile)
				if err != nil {
					return err
				}
				names = append(names, fromFile...)
			}
			if len(names) == 0 {
				return errors.New("no names given: pass names as arguments or use --names")
			}
			display, err := a.svc.TemplateDisplayName(ctx, args[0])
			if err != nil {
				return err
			}
			style, err := a.style(ctx, cmd)
			if err != nil {
				return err
			}
			a.dialogs.folder, _ = cmd.Flags().GetString("folder")
			a.announce(ctx, "Generating certificates in bulk", fmt.Sprintf("%s, %d names", display, len(names)))
			res := a.svc.GenerateBulk(ctx, args[0], display, names, style)
			return a.report(res, res.Error, func(w io.Writer) {
				if res.Reason == service.ReasonCancelled {
					fmt.Fprintln(w, "cancelled")
					return
				}
				fmt.Fprintf(w, "generated %d of %d certificates in %s\n", res.Count, res.Total, res.Folder)
				for _, f := range res.Failed {
					fmt.Fprintf(w, "  failed #%d %q: %s\n", f.Index+1, f.Name, f.Error)
				}
			})
		},
	}
	addStyleFlags(bulk)
	bulk.Flags().StringVarP(&namesFile, "names", "f", "", "file with one name per line, a name column, or a JSON array")
	bulk.Flags().String("folder", "", "output folder (prompted when empty)")

	cmd.AddCommand(preview, save, bulk)
	return cmd
}
