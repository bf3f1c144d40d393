// Package prompt holds the few-shot exemplar sets sent ahead of every page.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/local/flashdeck/internal/ai"
)

//go:embed exemplars.yaml
var defaultExemplars []byte

// Exemplar is one worked example: model input and the expected tagged output.
type Exemplar struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// Set is the system prompt and exemplars for one route.
type Set struct {
	System      string     `yaml:"system"`
	Instruction string     `yaml:"instruction"`
	Exemplars   []Exemplar `yaml:"exemplars"`
}

// Library holds one Set per route.
type Library struct {
	Vision Set `yaml:"vision"`
	Text   Set `yaml:"text"`
}

// Default returns the embedded library.
func Default() Library {
	lib, err := Parse(defaultExemplars)
	if err != nil {
		panic(fmt.Sprintf("embedded exemplars: %v", err))
	}
	return lib
}

// LoadFile reads a library from path; an empty path returns Default.
func LoadFile(path string) (Library, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Library{}, fmt.Errorf("read exemplars: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML library.
func Parse(b []byte) (Library, error) {
	var lib Library
	if err := yaml.Unmarshal(b, &lib); err != nil {
		return Library{}, fmt.Errorf("parse exemplars: %w", err)
	}
	if err := lib.Vision.validate("vision"); err != nil {
		return Library{}, err
	}
	if err := lib.Text.validate("text"); err != nil {
		return Library{}, err
	}
	return lib, nil
}

func (s Set) validate(name string) error {
	if strings.TrimSpace(s.System) == "" {
		return fmt.Errorf("exemplars %s: %w", name, errors.New("system prompt is empty"))
	}
	for i, e := range s.Exemplars {
		if strings.TrimSpace(e.Input) == "" || strings.TrimSpace(e.Output) == "" {
			return fmt.Errorf("exemplars %s[%d]: input and output are required", name, i)
		}
	}
	return nil
}

// For returns the set for a route ("vision" or "text").
func (l Library) For(vision bool) Set {
	if vision {
		return l.Vision
	}
	return l.Text
}

// Messages returns the exemplars as alternating user/assistant turns.
func (s Set) Messages() []ai.Message {
	out := make([]ai.Message, 0, len(s.Exemplars)*2)
	for _, e := range s.Exemplars {
		out = append(out,
			ai.Message{Role: ai.RoleUser, Text: strings.TrimSpace(e.Input)},
			ai.Message{Role: ai.RoleAssistant, Text: strings.TrimSpace(e.Output)},
		)
	}
	return out
}

// ImagePage builds the exemplar sequence followed by a page image.
func (s Set) ImagePage(imageBase64, mime string) []ai.Message {
	return append(s.Messages(), ai.Message{
		Role:        ai.RoleUser,
		Text:        s.Instruction,
		ImageBase64: imageBase64,
		ImageMIME:   mime,
	})
}

// TextPage builds the exemplar sequence followed by the page text.
func (s Set) TextPage(text string) []ai.Message {
	body := strings.TrimSpace(text)
	if s.Instruction != "" {
		body = s.Instruction + "\n\n" + body
	}
	return append(s.Messages(), ai.Message{Role: ai.RoleUser, Text: body})
}
