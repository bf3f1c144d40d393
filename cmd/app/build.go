package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/flashdeck/internal/ai"
	"github.com/local/flashdeck/internal/analyzer"
	"github.com/local/flashdeck/internal/cards"
	cfgpkg "github.com/local/flashdeck/internal/config"
	"github.com/local/flashdeck/internal/converter"
	"github.com/local/flashdeck/internal/dispatcher"
	"github.com/local/flashdeck/internal/filetype"
	"github.com/local/flashdeck/internal/imagerender"
	"github.com/local/flashdeck/internal/ocr"
	"github.com/local/flashdeck/internal/orchestrator"
	"github.com/local/flashdeck/internal/prompt"
	"github.com/local/flashdeck/internal/storage"
)

var errNoProviders = errors.New("no model provider configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY")

// aiClients returns a client for every provider with an API key.
func aiClients(p cfgpkg.ProvidersConfig) []ai.Client {
	var clients []ai.Client
	if p.OpenAI.APIKey != "" {
		var opts []ai.Option
		if p.OpenAI.BaseURL != "" {
			opts = append(opts, ai.WithBaseURL(p.OpenAI.BaseURL))
		}
		clients = append(clients, ai.NewOpenAIClient(p.OpenAI.APIKey, opts...))
	}
	if p.Anthropic.APIKey != "" {
		var opts []ai.Option
		if p.Anthropic.BaseURL != "" {
			opts = append(opts, ai.WithBaseURL(p.Anthropic.BaseURL))
		}
		clients = append(clients, ai.NewAnthropicClient(p.Anthropic.APIKey, opts...))
	}
	return clients
}

// s3Options maps the storage settings onto the S3 client options.
func s3Options(s cfgpkg.StorageConfig) storage.S3Options {
	return storage.S3Options{
		Bucket:          s.S3Bucket,
		Prefix:          s.S3Prefix,
		Region:          s.S3Region,
		Endpoint:        s.S3Endpoint,
		AccessKeyID:     s.S3AccessKeyID,
		SecretAccessKey: s.S3SecretAccessKey,
	}
}

func promptLibrary(a cfgpkg.AnalysisConfig) (prompt.Library, error) {
	if a.ExemplarsFile == "" {
		return prompt.Default(), nil
	}
	lib, err := prompt.LoadFile(a.ExemplarsFile)
	if err != nil {
		return prompt.Library{}, fmt.Errorf("load exemplars: %w", err)
	}
	return lib, nil
}

func analysisConfig(a cfgpkg.AnalysisConfig) analyzer.Config {
	return analyzer.Config{
		TextRatioThreshold: a.TextRatioThreshold,
		DeepAnalysis:       a.Deep,
		Concurrency:        a.Concurrency,
	}
}

// buildPipeline wires detection, conversion, rendering, OCR and the model
// dispatcher. A nil breaker keeps breaker state in memory.
func buildPipeline(cfg cfgpkg.Config, breaker dispatcher.Breaker, requireModels bool) (*orchestrator.Pipeline, error) {
	clients := aiClients(cfg.Providers)
	if len(clients) == 0 {
		if requireModels {
			return nil, errNoProviders
		}
		log.Warn().Msg("no model provider configured; card creation will fail")
	}
	lib, err := promptLibrary(cfg.Analysis)
	if err != nil {
		return nil, err
	}

	disp := dispatcher.New(dispatcher.Options{
		Providers: cfg.Providers,
		Worker:    cfg.Worker,
		Breaker:   breaker,
	}, clients...)

	return &orchestrator.Pipeline{
		Detector:  filetype.New(),
		Converter: converter.NewLibreOffice(cfg.Analysis.ConverterBinary, cfg.Worker.Concurrency, cfg.Analysis.ConvertTimeout),
		Renderer:  imagerender.NewRenderer(cfg.Analysis.DPI),
		Analyzer:  analyzer.New(ocr.NewExtractor(ocr.NewTesseract(cfg.Analysis.OCRLanguages...)), nil),
		Creator:   cards.NewCreator(disp, lib),
		WorkDir:   cfg.Storage.WorkDir,
	}, nil
}
