package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shorts-studio/audio"
	"shorts-studio/blob"
	"shorts-studio/bundle"
	"shorts-studio/pipeline"
	"shorts-studio/types"
)

type assetsOptions struct {
	outDir string
	zip    bool
	play   bool
	s3     bool
}

func newAssetsCommand(app *appContext) *cobra.Command {
	opts := assetsOptions{}

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Generate the voiceover and cover image for the current script and export them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := app.openPipeline(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			if err := ensureAssets(ctx, p); err != nil {
				return err
			}
			st := p.State()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🎙️  audio  %s (%s)\n", humanize.Bytes(uint64(st.Audio.Size())), st.Audio.Duration().Round(100*time.Millisecond))
			fmt.Fprintf(out, "🖼️  image  %s (%s)\n", humanize.Bytes(uint64(st.Image.Size())), st.Image.MimeType)

			if opts.outDir == "" {
				opts.outDir = app.cfg.Export.OutputDir
			}
			sink, err := app.sink(ctx, opts)
			if err != nil {
				return err
			}
			if err := exportAssets(ctx, out, sink, p.Registry(), st, opts.zip); err != nil {
				return err
			}

			if opts.play {
				player, err := audio.NewPlayer(st.Audio.Format)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "▶️  playing voiceover, Ctrl+C to stop")
				if err := player.Play(ctx, st.Audio); err != nil && ctx.Err() == nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Directory for exported files (default from config)")
	cmd.Flags().BoolVar(&opts.zip, "zip", false, "Export a single zip bundle instead of individual files")
	cmd.Flags().BoolVar(&opts.play, "play", false, "Play the voiceover after generating it")
	cmd.Flags().BoolVar(&opts.s3, "s3", false, "Upload exports to the configured S3 bucket")
	return cmd
}

// ensureAssets generates assets unless the current session already holds them
func ensureAssets(ctx context.Context, p *pipeline.Pipeline) error {
	st := p.State()
	if st.HasArtifacts() {
		return nil
	}
	if st.Stage == types.StageSearch {
		return fmt.Errorf("no script yet, run `shorts-studio search QUERY` first")
	}
	if err := p.GenerateAssets(ctx); err != nil {
		return explain(err)
	}
	return nil
}

func (a *appContext) sink(ctx context.Context, opts assetsOptions) (bundle.Sink, error) {
	if !opts.s3 {
		return bundle.DirSink{Dir: opts.outDir}, nil
	}
	s := a.cfg.Export.S3
	return bundle.NewS3Sink(ctx, bundle.S3Config{
		Bucket:       s.Bucket,
		Prefix:       s.Prefix,
		Region:       s.Region,
		Endpoint:     s.Endpoint,
		UsePathStyle: s.UsePathStyle,
	})
}

// bundleArtifacts resolves the bound artifacts through the registry so a
// released one is exported as absent
func bundleArtifacts(reg *blob.Registry, st pipeline.State) bundle.Artifacts {
	a := bundle.Artifacts{Script: st.Script}
	if st.Image != nil {
		if b, ok := reg.Lookup(st.Image.ID); ok {
			a.Image = b.Data()
		}
	}
	if handle := st.Audio.Handle(); handle != "" {
		if b, ok := reg.Lookup(handle); ok {
			a.Audio = b.Data()
		}
	}
	return a
}

func exportAssets(ctx context.Context, out io.Writer, sink bundle.Sink, reg *blob.Registry, st pipeline.State, asZip bool) error {
	artifacts := bundleArtifacts(reg, st)
	if asZip {
		archive, err := bundle.NewExporter().Export(artifacts)
		if err != nil {
			return err
		}
		where, err := sink.Put(ctx, archive.Name, archive.Data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "📦 %s (%s, %d files)\n", where, humanize.Bytes(uint64(len(archive.Data))), len(archive.Entries))
		return nil
	}
	for _, f := range artifacts.Files() {
		where, err := sink.Put(ctx, f.Name, f.Data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "💾 %s (%s)\n", where, humanize.Bytes(uint64(len(f.Data))))
	}
	return nil
}
