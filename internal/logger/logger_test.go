package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/flashdeck/internal/config"
)

func TestInit_JSONToConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, Init(Options{Level: "warn", File: file, MaxSizeMB: 1, Console: &buf}))
	defer Close()

	log.Info().Msg("hidden")
	log.Warn().Str("job_id", "j1").Msg("visible")

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev))
	assert.Equal(t, "visible", ev["message"])
	assert.Equal(t, "j1", ev["job_id"])
	assert.Equal(t, serviceName, ev["service"])
	assert.Equal(t, zerolog.WarnLevel, Get().GetLevel())
	assert.FileExists(t, file)
}

func TestInit_BadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "loud", Console: &buf}))
	assert.Equal(t, zerolog.InfoLevel, Get().GetLevel())
}

type captureSender struct{ events []axiom.Event }

func (c *captureSender) Send(ev axiom.Event) { c.events = append(c.events, ev) }

func TestAxiomWriter_DropsDebug(t *testing.T) {
	s := &captureSender{}
	w := &axiomWriter{client: s}

	line := []byte(`{"level":"debug","message":"noise"}`)
	n, err := w.Write(line)
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Empty(t, s.events)

	_, err = w.Write([]byte(`{"level":"info","message":"routed","page":3}`))
	require.NoError(t, err)
	_, err = w.Write([]byte("not json"))
	require.NoError(t, err)

	require.Len(t, s.events, 2)
	assert.Equal(t, "routed", s.events[0]["message"])
	assert.Equal(t, serviceName, s.events[0]["service"])
	assert.Equal(t, "not json", s.events[1]["message"])
}

func TestFromConfig(t *testing.T) {
	o := FromConfig(
		config.LoggingConfig{Level: "debug", Pretty: true, File: "x.log", MaxSizeMB: 5},
		config.AxiomConfig{Send: true, APIKey: "k", Dataset: "prod_flashdeck", FlushInterval: time.Second},
	)
	assert.Equal(t, "debug", o.Level)
	assert.True(t, o.Pretty)
	assert.Equal(t, 5, o.MaxSizeMB)
	assert.True(t, o.SendToAxiom)
	assert.Equal(t, "prod_flashdeck", o.AxiomDataset)
	assert.Equal(t, time.Second, o.AxiomFlush)
}
