package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/pipeline"
	"github.com/joseph-ayodele/video-insights/internal/stage"
)

type stageFunc func(p *pipeline.Processor, ctx context.Context) (stage.Stats, error)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "video-insights",
		Short:         "Transcribe, summarize and analyze a folder of videos into one table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&a.rootDir, "root", "", "working root (overrides VI_ROOT_DIR)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	runCmd := newRunCmd(a)
	root.RunE = runCmd.RunE
	root.AddCommand(
		runCmd,
		newStageCmd(a, constants.StageTranscribe, "Extract audio and transcribe every video",
			needs{transcriber: true}, (*pipeline.Processor).Transcribe),
		newStageCmd(a, constants.StageSummarize, "Summarize and tag every transcript",
			needs{generator: true}, (*pipeline.Processor).Summarize),
		newScreenshotsCmd(a),
		newStageCmd(a, constants.StageAnalyze, "Analyze the screenshots of flagged videos",
			needs{generator: true}, (*pipeline.Processor).Analyze),
		newMergeCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order, then merge and export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			ctx := a.runContext(cmd.Context())
			p, err := a.processor(ctx, needs{generator: true, transcriber: true})
			if err != nil {
				return err
			}
			a.announceInputs()
			rep, err := p.RunAll(ctx)
			if err != nil {
				return err
			}
			a.printer.Done(rep.Stages, time.Since(start))
			return nil
		},
	}
}

func newStageCmd(a *app, name, short string, n needs, fn stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			ctx := a.runContext(cmd.Context())
			p, err := a.processor(ctx, n)
			if err != nil {
				return err
			}
			stats, err := fn(p, ctx)
			if err != nil {
				return err
			}
			if stats.Nothing() {
				a.printer.Nothing(name)
				return nil
			}
			a.printer.Done([]stage.Stats{stats}, time.Since(start))
			return nil
		},
	}
}

func newScreenshotsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   constants.StageScreenshots,
		Short: "Extract scene screenshots for every flagged video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			ctx := a.runContext(cmd.Context())
			p, err := a.processor(ctx, needs{})
			if err != nil {
				return err
			}
			ex, err := p.ExtractScreenshots(ctx)
			if err != nil {
				return err
			}
			if ex.Videos == ex.Reused {
				a.printer.Nothing(constants.StageScreenshots)
				return nil
			}
			a.printer.Done([]stage.Stats{{
				Stage:     constants.StageScreenshots,
				Total:     ex.Videos,
				Done:      ex.Reused,
				Remaining: ex.Videos - ex.Reused,
				Succeeded: ex.Videos - ex.Reused - ex.Failed,
				Failed:    ex.Failed,
				Elapsed:   ex.Elapsed,
			}}, time.Since(start))
			return nil
		},
	}
}

func newMergeCmd(a *app) *cobra.Command {
	var noExport bool
	cmd := &cobra.Command{
		Use:   constants.StageMerge,
		Short: "Merge the stage tables into the combined table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start := time.Now()
			if noExport {
				a.cfg.ExportXLSX = false
			}
			ctx := a.runContext(cmd.Context())
			p, err := a.processor(ctx, needs{})
			if err != nil {
				return err
			}
			res, err := p.Merge(ctx)
			if err != nil {
				return err
			}
			a.printer.Done([]stage.Stats{{
				Stage:     constants.StageMerge,
				Total:     res.Rows,
				Succeeded: res.Rows,
				Elapsed:   res.Elapsed,
			}}, time.Since(start))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noExport, "no-export", false, "skip the XLSX export")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent stage runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := a.journal(cmd.Context(), true)
			if err != nil {
				return err
			}
			runs, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			a.printer.History(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows to show")
	return cmd
}
