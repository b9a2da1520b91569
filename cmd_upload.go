package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newUploadCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Publish the current session to YouTube (simulated)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := app.openPipeline(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			if !p.State().Connected {
				return errors.New("YouTube is not connected, run `shorts-studio connect` first")
			}
			// artifacts live only in memory, so a fresh process regenerates them
			if err := ensureAssets(ctx, p); err != nil {
				return err
			}
			if err := p.BeginUpload(); err != nil {
				return explain(err)
			}
			res, err := p.Upload(ctx)
			if err != nil {
				return explain(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "⚠️  %s\n", res.Notice)
			fmt.Fprintf(out, "   title: %s\n", res.Title)
			return nil
		},
	}
}
