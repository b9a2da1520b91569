package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shorts-studio/pipeline"
)

func newStatusCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current pipeline stage and saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.openPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			rows := app.statusRows(p.State())
			out := cmd.OutOrStdout()
			if isTerminal(out) {
				fmt.Fprintln(out, renderKeyValues(rows))
			} else {
				fmt.Fprintln(out, renderPlain(rows))
			}
			return nil
		},
	}
}

func (a *appContext) statusRows(st pipeline.State) [][2]string {
	query := st.Query
	if query == "" {
		query = "-"
	}
	rows := [][2]string{
		{"Stage", string(st.Stage)},
		{"Query", query},
		{"Language", a.languageLabel(st.Language)},
		{"YouTube", connectedLabel(st.Connected)},
	}
	if st.ProductInfo != "" {
		rows = append(rows, [2]string{"Product info", humanize.Comma(int64(len(st.ProductInfo))) + " chars"})
	}
	if st.Script != nil {
		rows = append(rows, [2]string{"Hook", st.Script.Hook})
	}
	if st.HasArtifacts() {
		rows = append(rows,
			[2]string{"Audio", humanize.Bytes(uint64(st.Audio.Size()))},
			[2]string{"Image", humanize.Bytes(uint64(st.Image.Size()))},
		)
	}
	if a.store != nil {
		rows = append(rows, [2]string{"State", a.store.Path()})
	}
	if st.LastError != nil {
		rows = append(rows, [2]string{"Last error", st.LastError.Error()})
	}
	return rows
}

func connectedLabel(connected bool) string {
	if connected {
		return "connected"
	}
	return "not connected"
}

func newResetCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the current session and start over",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.openPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			p.Reset(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "🔄 Session cleared")
			return nil
		},
	}
}
