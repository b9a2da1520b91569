package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shorts-studio/types"
)

func newSearchCommand(app *appContext) *cobra.Command {
	var langFlag string

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Look up a product and write a script for it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := types.ParseLanguage(langFlag)
			if err != nil {
				return err
			}
			p, err := app.openPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			if err := p.Submit(cmd.Context(), strings.Join(args, " "), lang); err != nil {
				return explain(err)
			}
			st := p.State()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📝 Script for %q (%s)\n\n", st.Query, app.languageLabel(st.Language))
			fmt.Fprintln(out, st.Script.PlainText())
			fmt.Fprintln(out, "\nNext: `shorts-studio assets` to generate the voiceover and cover image.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&langFlag, "lang", "l", string(types.LanguagePrimary), "Script language (en, hi)")
	return cmd
}

func (a *appContext) languageLabel(lang types.Language) string {
	switch lang {
	case types.LanguageSecondary:
		return a.cfg.Languages.SecondaryLabel
	default:
		return a.cfg.Languages.PrimaryLabel
	}
}
