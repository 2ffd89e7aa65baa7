package formatting

import (
	"io"

	"gopkg.in/yaml.v3"

	"echopulse/internal/agent"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
	docs    int
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{
		options: options,
	}
}

// FormatAgents writes one YAML document per call; documents after the first
// are preceded by a separator.
func (f *YAMLFormatter) FormatAgents(title string, agents []agent.Agent) error {
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, newAgentView(a))
	}
	return f.FormatData(struct {
		Title  string      `yaml:"title"`
		Count  int         `yaml:"count"`
		Agents []agentView `yaml:"agents"`
	}{title, len(agents), views})
}

// FormatData writes data as a YAML document.
func (f *YAMLFormatter) FormatData(data interface{}) error {
	out := f.options.writer()
	if f.docs > 0 {
		if _, err := io.WriteString(out, "---\n"); err != nil {
			return err
		}
	}
	f.docs++

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}
