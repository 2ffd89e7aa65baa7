package formatting

import (
	"encoding/json"
	"fmt"
	"time"

	"echopulse/internal/agent"
)

// agentView is the YAML shape of an agent. Thought log entries are decoded
// so they render as YAML rather than quoted JSON.
type agentView struct {
	ID         string        `yaml:"id"`
	Name       string        `yaml:"name"`
	Status     string        `yaml:"status"`
	Zone       string        `yaml:"zone"`
	Mood       string        `yaml:"mood"`
	CreatedAt  time.Time     `yaml:"created_at"`
	UpdatedAt  time.Time     `yaml:"updated_at"`
	IsActive   bool          `yaml:"is_active"`
	ThoughtLog []interface{} `yaml:"thought_log"`
}

func newAgentView(a agent.Agent) agentView {
	thoughts := make([]interface{}, 0, len(a.ThoughtLog))
	for _, raw := range a.ThoughtLog {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			v = string(raw)
		}
		thoughts = append(thoughts, v)
	}
	return agentView{
		ID:         a.ID,
		Name:       a.Name,
		Status:     a.Status,
		Zone:       string(a.Zone),
		Mood:       string(a.Mood),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
		IsActive:   a.IsActive,
		ThoughtLog: thoughts,
	}
}

// since renders a coarse age such as "3m" or "2d".
func since(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := max(now.Sub(t), 0)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
