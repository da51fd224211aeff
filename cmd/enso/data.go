package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RCOEM-Google-DSC/enso/store"
)

// parseRecord turns key=value pairs into a record. Values that parse as
// JSON keep their type; anything else is a string.
func parseRecord(pairs []string) (store.Record, error) {
	rec := store.Record{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: want key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			rec[key] = decoded
		} else {
			rec[key] = value
		}
	}
	return rec, nil
}

func printRecords(w io.Writer, records []store.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no records")
		return
	}
	for _, r := range records {
		keys := make([]string, 0, len(r))
		for k := range r {
			if k != "id" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(r.ID())
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s=%v", k, r[k])
		}
		fmt.Fprintln(w, b.String())
	}
}

func (a *app) dataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage JSON data files in the application data directory",
	}

	load := &cobra.Command{
		Use:   "load <file>",
		Short: "Print the records of a data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := a.svc.LoadData(cmd.Context(), args[0])
			return a.report(res, res.Error, func(w io.Writer) { printRecords(w, res.Records) })
		},
	}

	add := &cobra.Command{
		Use:   "add <file> key=value...",
		Short: "Append a record; an id is assigned when missing",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(args[1:])
			if err != nil {
				return err
			}
			res := a.svc.AddRecord(cmd.Context(), args[0], rec)
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintf(w, "added %s (%d records)\n", res.Record.ID(), len(res.Records))
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <file> <id>",
		Short: "Remove the record with the given id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := a.svc.RemoveRecord(cmd.Context(), args[0], args[1])
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintf(w, "removed %s (%d records left)\n", args[1], len(res.Records))
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <file>",
		Short: "Remove every record of a data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := a.svc.RemoveAll(cmd.Context(), args[0])
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintf(w, "cleared %s\n", args[0])
			})
		},
	}

	cmd.AddCommand(load, add, remove, clearCmd)
	return cmd
}
