package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/RCOEM-Google-DSC/enso/convert"
)

type convertResult struct {
	Success bool   `json:"success"`
	Input   string `json:"input"`
	Output  string `json:"output"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

func (a *app) convertCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert a table between CSV and JSON",
		Long: `Convert a table between CSV and JSON. Formats are taken from the file
extensions unless --from or --to is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]
			src, err := format(from, in)
			if err != nil {
				return err
			}
			dst, err := format(to, out)
			if err != nil {
				return err
			}
			r, err := os.Open(in)
			if err != nil {
				return err
			}
			defer r.Close()
			table, err := convert.Read(r, src)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}
			w, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := convert.Write(w, table, dst); err != nil {
				w.Close()
				return fmt.Errorf("write %s: %w", out, err)
			}
			if err := w.Close(); err != nil {
				return err
			}
			stats := table.Stats()
			res := convertResult{Success: true, Input: in, Output: out, Rows: stats.Rows, Columns: stats.Columns}
			return a.report(res, "", func(w io.Writer) {
				fmt.Fprintf(w, "converted %d rows, %d columns to %s\n", stats.Rows, stats.Columns, out)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "input format (csv or json)")
	cmd.Flags().StringVar(&to, "to", "", "output format (csv or json)")
	return cmd
}

func format(flag, path string) (convert.Format, error) {
	if flag != "" {
		return convert.DetectFormat("x." + flag)
	}
	return convert.DetectFormat(path)
}
