// Package formatting renders agents for the command line in table, JSON or
// YAML form.
package formatting

import (
	"io"
	"os"

	"echopulse/internal/agent"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool // Suppress decorative elements
	Color  bool // Enable colored output

	// Out defaults to os.Stdout.
	Out io.Writer
}

func (o Options) writer() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

// Formatter renders agent listings.
type Formatter interface {
	// FormatAgents renders one titled group of agents, e.g. the active
	// Echoes or the Memory Garden.
	FormatAgents(title string, agents []agent.Agent) error
}

// New creates the formatter for options.Format. Unknown formats fall back
// to the table.
func New(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return NewJSONFormatter(options)
	case FormatYAML:
		return NewYAMLFormatter(options)
	default:
		return NewTableFormatter(options)
	}
}

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, bool) {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, true
	case "":
		return FormatTable, true
	default:
		return "", false
	}
}
