package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/local/flashdeck/internal/config"
	logpkg "github.com/local/flashdeck/internal/logger"
)

// cli carries the configuration loaded before any subcommand runs.
type cli struct {
	envFile  string
	logLevel string
	cfg      cfgpkg.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "flashdeck",
		Short: "Turn slide decks into question and answer flashcards",
		Long: `flashdeck renders every page of a PDF, presentation or image, decides
per page whether a text model or a vision model should read it, and
collects the <Question>/<Answer> pairs the models return as CSV flashcards.

Examples:
  flashdeck serve --local
  flashdeck analyze lecture.pdf --deep
  flashdeck cards lecture.pptx --chapter "Cell Biology" -o cards.csv`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logpkg.Close()
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override LOG_LEVEL (trace, debug, info, warn, error)")

	root.AddCommand(newServeCmd(c), newAnalyzeCmd(c), newCardsCmd(c))
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	c.cfg = cfgpkg.Load(c.envFile)
	if c.logLevel != "" {
		c.cfg.Logging.Level = c.logLevel
	}
	opts := logpkg.FromConfig(c.cfg.Logging, c.cfg.Axiom)
	if cmd.Name() != "serve" {
		// stdout carries command output
		opts.Console = cmd.ErrOrStderr()
	}
	if err := logpkg.Init(opts); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	return nil
}
