package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RCOEM-Google-DSC/enso/certificate"
)

// addStyleFlags registers the flags read by applyStyleFlags.
func addStyleFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("font-size", 0, "font size in points")
	f.Float64("x-offset", 0, "horizontal offset from centre in points")
	f.Float64("y-offset", 0, "vertical offset in points")
	f.String("color", "", "text colour as r,g,b (0-255)")
}

// applyStyleFlags overrides the fields of style whose flags were set.
func applyStyleFlags(cmd *cobra.Command, style certificate.StyleOptions) (certificate.StyleOptions, error) {
	f := cmd.Flags()
	if f.Changed("font-size") {
		style.FontSize, _ = f.GetFloat64("font-size")
	}
	if f.Changed("x-offset") {
		style.XOffset, _ = f.GetFloat64("x-offset")
	}
	if f.Changed("y-offset") {
		style.YOffset, _ = f.GetFloat64("y-offset")
	}
	if f.Changed("color") {
		v, _ := f.GetString("color")
		c, err := parseRGB(v)
		if err != nil {
			return style, err
		}
		style.TextColor = &c
	}
	return certificate.Normalize(style), nil
}

func parseRGB(s string) (certificate.RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 6 && !strings.Contains(s, ",") {
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return certificate.RGB{}, fmt.Errorf("invalid colour %q", s)
		}
		return certificate.RGB{R: int(v >> 16 & 0xff), G: int(v >> 8 & 0xff), B: int(v & 0xff)}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return certificate.RGB{}, fmt.Errorf("invalid colour %q: want r,g,b or rrggbb", s)
	}
	var rgb [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return certificate.RGB{}, fmt.Errorf("invalid colour component %q", p)
		}
		rgb[i] = n
	}
	return certificate.RGB{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
}

func printStyle(w io.Writer, s certificate.StyleOptions) {
	fmt.Fprintf(w, "font size  %g\n", s.FontSize)
	fmt.Fprintf(w, "x offset   %g\n", s.XOffset)
	fmt.Fprintf(w, "y offset   %g\n", s.YOffset)
	if c := s.TextColor; c != nil {
		fmt.Fprintf(w, "colour     %d,%d,%d\n", c.R, c.G, c.B)
	}
}

func (a *app) styleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "style",
		Short: "Show or change the name text style",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved style",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := a.svc.LoadStyle(cmd.Context())
			return a.report(res, res.Error, func(w io.Writer) { printStyle(w, res.Style) })
		},
	}

	var reset bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the saved style",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base := certificate.Defaults()
			if !reset {
				loaded := a.svc.LoadStyle(cmd.Context())
				if !loaded.Success {
					return a.report(loaded, loaded.Error, nil)
				}
				base = loaded.Style
			}
			style, err := applyStyleFlags(cmd, base)
			if err != nil {
				return err
			}
			res := a.svc.SaveStyle(cmd.Context(), style)
			return a.report(res, res.Error, func(w io.Writer) { printStyle(w, res.Style) })
		},
	}
	addStyleFlags(set)
	set.Flags().BoolVar(&reset, "reset", false, "start from the default style")

	cmd.AddCommand(show, set)
	return cmd
}
