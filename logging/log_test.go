package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomOutputForApplicationLog(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{ApplicationLogOutput: &buf, ApplicationLogLevel: DefaultLevel})
	msg := "Hello, world!"
	log.Info(msg)
	if !strings.Contains(buf.String(), msg) {
		t.Error("failed to use custom output")
	}
}

func TestCustomPrefixForApplicationLog(t *testing.T) {
	var buf bytes.Buffer
	prefix := "[switch-1]"
	Init(Options{
		ApplicationLogOutput: &buf,
		ApplicationLogLevel:  DefaultLevel,
		ApplicationLogPrefix: prefix})
	log.Info("Hello, world!")
	got := buf.String()
	if !strings.HasPrefix(got, prefix) || !strings.Contains(got, "Hello, world!") {
		t.Error("failed to use custom prefix")
	}
}

func TestApplicationLogLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)

	Init(Options{ApplicationLogOutput: &buf, ApplicationLogLevel: lvl})
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestJSONApplicationLog(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{ApplicationLogOutput: &buf, ApplicationLogLevel: DefaultLevel, ApplicationLogJSONEnabled: true})
	log.WithField("group", 5).Info("joined")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "joined", entry["msg"])
	assert.Equal(t, float64(5), entry["group"])

	Init(Options{ApplicationLogLevel: DefaultLevel})
}
