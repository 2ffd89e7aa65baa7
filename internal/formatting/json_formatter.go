package formatting

import (
	"encoding/json"

	"echopulse/internal/agent"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{
		options: options,
	}
}

// FormatAgents writes {"title": ..., "count": n, "agents": [...]}. The
// agents array is never null.
func (f *JSONFormatter) FormatAgents(title string, agents []agent.Agent) error {
	if agents == nil {
		agents = []agent.Agent{}
	}
	return f.FormatData(struct {
		Title  string        `json:"title"`
		Count  int           `json:"count"`
		Agents []agent.Agent `json:"agents"`
	}{title, len(agents), agents})
}

// FormatData writes data as indented JSON.
func (f *JSONFormatter) FormatData(data interface{}) error {
	enc := json.NewEncoder(f.options.writer())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
