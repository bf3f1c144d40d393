package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/flashdeck/internal/analyzer"
	"github.com/local/flashdeck/internal/cards"
	"github.com/local/flashdeck/internal/orchestrator"
	"github.com/local/flashdeck/internal/storage"
)

// deckFlags are shared by the one-shot commands.
type deckFlags struct {
	threshold float64
	deep      bool
	pages     string
}

func (f *deckFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.threshold, "threshold", -1, "text ratio threshold in [0, 1] (default TEXT_RATIO_THRESHOLD)")
	cmd.Flags().BoolVar(&f.deep, "deep", false, "use glyph boxes and graphic regions instead of the text length estimate")
	cmd.Flags().StringVar(&f.pages, "pages", "", "0-based page selection such as 0,2,5-7 (default all)")
}

// resolve applies the flags over the configured analysis settings.
func (f *deckFlags) resolve(cmd *cobra.Command, base analyzer.Config) (analyzer.Config, []int, error) {
	cfg := base
	if cmd.Flags().Changed("threshold") {
		if math.IsNaN(f.threshold) || f.threshold < 0 || f.threshold > 1 {
			return cfg, nil, fmt.Errorf("--threshold must be in [0, 1], got %v", f.threshold)
		}
		cfg.TextRatioThreshold = f.threshold
	}
	if cmd.Flags().Changed("deep") {
		cfg.DeepAnalysis = f.deep
	}
	pages, err := orchestrator.ParsePageList(f.pages)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, pages, nil
}

func newAnalyzeCmd(c *cli) *cobra.Command {
	var f deckFlags
	cmd := &cobra.Command{
		Use:   "analyze <deck>",
		Short: "Classify each page of a deck and print the analysis as JSON",
		Long: `Render the deck and print one analysis per page: text and graphics ratios,
complexity, OCR text and whether the page would be sent to the vision model.

<deck> is a local path, file:// or http(s):// URL, or s3://bucket/key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acfg, pages, err := f.resolve(cmd, analysisConfig(c.cfg.Analysis))
			if err != nil {
				return err
			}
			p, err := buildPipeline(c.cfg, nil, false)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			path, cleanup, err := storage.Fetch(ctx, args[0], c.cfg.Storage.WorkDir, s3Options(c.cfg.Storage))
			if err != nil {
				return err
			}
			defer cleanup()

			imgs, kind, err := p.LoadPages(ctx, path, pages)
			if err != nil {
				return err
			}
			results, err := p.Analyzer.Analyze(ctx, imgs, acfg)
			if err != nil {
				return err
			}
			log.Info().Str("kind", string(kind)).Int("pages", len(results)).Int("vision_pages", results.VisionCount()).Msg("deck analyzed")

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	f.register(cmd)
	return cmd
}

func newCardsCmd(c *cli) *cobra.Command {
	var (
		f       deckFlags
		chapter string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "cards <deck>",
		Short: "Create flashcards for a deck and write them as CSV",
		Long: `Run the full pipeline on one deck without the queue: classify pages, send
each one to the matching model and write the question and answer pairs as CSV.

<deck> is a local path, file:// or http(s):// URL, or s3://bucket/key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acfg, pages, err := f.resolve(cmd, analysisConfig(c.cfg.Analysis))
			if err != nil {
				return err
			}
			p, err := buildPipeline(c.cfg, nil, true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			path, cleanup, err := storage.Fetch(ctx, args[0], c.cfg.Storage.WorkDir, s3Options(c.cfg.Storage))
			if err != nil {
				return err
			}
			defer cleanup()

			if chapter == "" {
				chapter = deckStem(args[0])
			}
			res, err := p.Run(ctx, orchestrator.RunRequest{
				JobID:     uuid.NewString(),
				InputPath: path,
				Chapter:   chapter,
				Pages:     pages,
				Analysis:  acfg,
			}, func(pct int, msg string) {
				log.Info().Int("progress", pct).Msg(msg)
			})
			if err != nil {
				return err
			}

			if err := writeCards(cmd.OutOrStdout(), out, res.Cards, c.cfg.Worker.CSVDelimiter); err != nil {
				return err
			}
			log.Info().Int("cards", len(res.Cards)).Int("vision_pages", res.Analysis.VisionCount()).Msg("cards written")
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&chapter, "chapter", "", "chapter name stored with each card (default the file name)")
	cmd.Flags().StringVarP(&out, "output", "o", "-", "CSV output file, - for stdout")
	return cmd
}

// writeCards writes cs as CSV to the file out, or to stdout when out is
// empty or "-".
func writeCards(stdout io.Writer, out string, cs []cards.Card, delim rune) (err error) {
	if out == "" || out == "-" {
		return cards.WriteCSV(stdout, cs, delim)
	}
	fh, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := fh.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	return cards.WriteCSV(fh, cs, delim)
}

// deckStem returns the file name of ref without directory, query or extension.
func deckStem(ref string) string {
	ref, _, _ = strings.Cut(ref, "?")
	ref, _, _ = strings.Cut(ref, "#")
	base := filepath.Base(ref)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
