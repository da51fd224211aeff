package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/RCOEM-Google-DSC/enso/observability"
	"github.com/RCOEM-Google-DSC/enso/presence"
)

func (a *app) presenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Discord Rich Presence",
		Long: `Discord Rich Presence. Requires presence.enabled in the config (or
ENSO_PRESENCE_ENABLED=true) and a running Discord client.`,
	}

	var timeout time.Duration
	connect := func(ctx context.Context) (context.Context, context.CancelFunc, error) {
		if a.presence == nil {
			return ctx, func() {}, errors.New("presence is disabled")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		if err := a.presence.Connect(ctx); err != nil {
			cancel()
			return ctx, func() {}, err
		}
		return ctx, cancel, nil
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether Discord is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.presence != nil {
				_, cancel, err := connect(cmd.Context())
				cancel()
				if err != nil {
					a.log.Debug("presence connect failed", observability.Err(err))
				}
			}
			res := a.svc.PresenceStatus()
			return a.report(res, res.Error, func(w io.Writer) {
				switch {
				case a.presence == nil:
					fmt.Fprintln(w, "disabled")
				case res.Connected:
					fmt.Fprintln(w, "connected")
				default:
					fmt.Fprintln(w, "not connected")
				}
			})
		},
	}

	var activity presence.Activity
	set := &cobra.Command{
		Use:   "set",
		Short: "Show an activity on the Discord profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel, err := connect(cmd.Context())
			defer cancel()
			if err != nil {
				return err
			}
			res := a.svc.SetActivity(ctx, activity)
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintln(w, "activity set")
			})
		},
	}
	f := set.Flags()
	f.StringVar(&activity.Details, "details", "Making certificates", "first line")
	f.StringVar(&activity.State, "state", "", "second line")
	f.StringVar(&activity.LargeImageKey, "large-image", "enso", "large image asset key")
	f.StringVar(&activity.LargeImageText, "large-text", "ENSO", "large image tooltip")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel, err := connect(cmd.Context())
			defer cancel()
			if err != nil {
				return err
			}
			res := a.svc.ClearActivity(ctx)
			return a.report(res, res.Error, func(w io.Writer) {
				fmt.Fprintln(w, "activity cleared")
			})
		},
	}

	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Second, "connect timeout")
	cmd.AddCommand(status, set, clearCmd)
	return cmd
}
