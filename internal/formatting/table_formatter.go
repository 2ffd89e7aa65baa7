package formatting

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"echopulse/internal/agent"
	"echopulse/internal/zones"
	textutil "echopulse/pkg/strings"
)

// maxNameLen caps the NAME column; container names may be long.
const maxNameLen = 32

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
	now     func() time.Time
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
		now:     time.Now,
	}
}

// FormatAgents renders agents with zone, mood and age columns.
func (f *TableFormatter) FormatAgents(title string, agents []agent.Agent) error {
	if len(agents) == 0 {
		if !f.options.Quiet {
			fmt.Fprint(f.options.writer(), f.formatEmptyMessage(fmt.Sprintf("No agents in %s", title)))
		}
		return nil
	}

	t := f.createTable()
	if !f.options.Quiet {
		t.SetTitle(title)
	}
	t.AppendHeader(table.Row{
		f.header("ID"), f.header("NAME"), f.header("STATUS"),
		f.header("ZONE"), f.header("MOOD"), f.header("THOUGHTS"), f.header("UPDATED"),
	})

	now := f.now()
	for _, a := range agents {
		t.AppendRow(table.Row{
			a.ID[:min(12, len(a.ID))],
			textutil.Ellipsize(a.Name, maxNameLen),
			f.status(a.Status),
			zoneLabel(a.Zone),
			a.Mood,
			len(a.ThoughtLog),
			since(now, a.UpdatedAt),
		})
	}
	if !f.options.Quiet {
		t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(agents)})
	}

	t.Render()
	return nil
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.writer())
	if f.options.Quiet {
		t.SetStyle(table.StyleLight)
		t.Style().Options.DrawBorder = false
	} else {
		t.SetStyle(table.StyleRounded)
	}
	return t
}

func (f *TableFormatter) header(s string) string {
	if !f.options.Color {
		return s
	}
	return text.FgHiCyan.Sprint(s)
}

func (f *TableFormatter) status(s string) string {
	if !f.options.Color {
		return s
	}
	switch s {
	case "running":
		return text.FgGreen.Sprint(s)
	case "paused", "restarting", "created":
		return text.FgYellow.Sprint(s)
	case "exited", "dead", "stopped":
		return text.FgRed.Sprint(s)
	default:
		return text.FgHiBlack.Sprint(s)
	}
}

func (f *TableFormatter) formatEmptyMessage(message string) string {
	if !f.options.Color {
		return message + "\n"
	}
	return text.FgYellow.Sprint(message) + "\n"
}

func zoneLabel(z zones.Zone) string {
	if info, ok := zones.Lookup(z); ok {
		return info.Emoji + " " + string(z)
	}
	return string(z)
}
