package formatting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"echopulse/internal/agent"
)

func sampleAgents() []agent.Agent {
	now := time.Now().UTC()
	return []agent.Agent{
		agent.Observe("abc123def456789", "echo-1", "running", now),
		agent.Observe("fff000", "echo-2", "mystery", now),
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatTable, "table": FormatTable, "json": FormatJSON, "yaml": FormatYAML} {
		got, ok := ParseFormat(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseFormat("xml")
	assert.False(t, ok)
}

func TestTableFormatter_FormatAgents(t *testing.T) {
	var buf bytes.Buffer
	f := New(Options{Format: FormatTable, Out: &buf})

	require.NoError(t, f.FormatAgents("Active Echoes", sampleAgents()))

	out := buf.String()
	assert.Contains(t, out, "Active Echoes")
	assert.Contains(t, out, "abc123def456")
	assert.NotContains(t, out, "abc123def456789", "ids are shortened")
	assert.Contains(t, out, "Echo Plaza")
	assert.Contains(t, out, "The Void")
	assert.Contains(t, out, "inscrutable")
}

func TestTableFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(Options{Out: &buf}).FormatAgents("Memory Garden", nil))
	assert.Equal(t, "No agents in Memory Garden\n", buf.String())

	buf.Reset()
	require.NoError(t, New(Options{Out: &buf, Quiet: true}).FormatAgents("Memory Garden", nil))
	assert.Empty(t, buf.String())
}

func TestJSONFormatter_FormatAgents(t *testing.T) {
	var buf bytes.Buffer
	f := New(Options{Format: FormatJSON, Out: &buf})

	require.NoError(t, f.FormatAgents("Memory Garden", nil))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "Memory Garden", got["title"])
	assert.EqualValues(t, 0, got["count"])
	assert.Equal(t, []any{}, got["agents"])
}

func TestYAMLFormatter_SeparatesDocuments(t *testing.T) {
	var buf bytes.Buffer
	f := New(Options{Format: FormatYAML, Out: &buf})

	require.NoError(t, f.FormatAgents("Active Echoes", sampleAgents()))
	require.NoError(t, f.FormatAgents("Memory Garden", nil))

	dec := yaml.NewDecoder(strings.NewReader(buf.String()))
	var docs []map[string]any
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			break
		}
		docs = append(docs, doc)
	}
	require.Len(t, docs, 2)
	assert.Equal(t, 2, docs[0]["count"])
	assert.Equal(t, "Memory Garden", docs[1]["title"])

	first := docs[0]["agents"].([]any)[0].(map[string]any)
	assert.Equal(t, "Echo Plaza", first["zone"])
	assert.Equal(t, []any{}, first["thought_log"])
}
