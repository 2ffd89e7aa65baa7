package hub

import (
	"encoding/json"
	"fmt"
	"strings"

	"echopulse/internal/agent"
)

// SchemaVersion is carried by every full_update so clients can detect
// payload changes.
const SchemaVersion = 1

// MessageType identifies an outbound message.
type MessageType string

const (
	TypeFullUpdate     MessageType = "full_update"
	TypeCommandReceipt MessageType = "command_receipt"
	TypeError          MessageType = "error"
	TypeLogs           MessageType = "logs"
)

// Snapshot is the world view pushed to observers.
type Snapshot struct {
	ActiveAgents []agent.Agent `json:"active_agents"`
	MemoryGarden []agent.Agent `json:"memory_garden"`
}

// FullUpdate wraps a Snapshot for broadcast.
type FullUpdate struct {
	Type          MessageType `json:"type"`
	SchemaVersion int         `json:"schema_version"`
	Payload       Snapshot    `json:"payload"`
}

// NewFullUpdate builds a full_update message. Nil lists encode as [].
func NewFullUpdate(s Snapshot) FullUpdate {
	if s.ActiveAgents == nil {
		s.ActiveAgents = []agent.Agent{}
	}
	if s.MemoryGarden == nil {
		s.MemoryGarden = []agent.Agent{}
	}
	return FullUpdate{Type: TypeFullUpdate, SchemaVersion: SchemaVersion, Payload: s}
}

// CommandReceipt acknowledges a command to the observer that issued it.
type CommandReceipt struct {
	Type    MessageType `json:"type"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
}

// ErrorMessage reports a rejected or failed command.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// LogsMessage answers get_logs.
type LogsMessage struct {
	Type        MessageType `json:"type"`
	ContainerID string      `json:"container_id"`
	Success     bool        `json:"success"`
	Logs        string      `json:"logs"`
}

func receipt(success bool, format string, args ...any) CommandReceipt {
	return CommandReceipt{Type: TypeCommandReceipt, Success: success, Message: fmt.Sprintf(format, args...)}
}

func errorMessage(format string, args ...any) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: fmt.Sprintf(format, args...)}
}

// Action is an inbound command verb.
type Action string

const (
	ActionStart       Action = "start"
	ActionStop        Action = "stop"
	ActionRestart     Action = "restart"
	ActionCreateAgent Action = "create_agent"
	ActionRetireAgent Action = "retire_agent"
	ActionGetLogs     Action = "get_logs"
)

// Command is an inbound observer message.
type Command struct {
	Action      Action `json:"action"`
	ContainerID string `json:"container_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Image       string `json:"image,omitempty"`
	Tail        *int   `json:"tail,omitempty"`
}

// ParseCommand decodes and validates a command. Errors wrap
// agent.ErrInvalidCommand.
func ParseCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: malformed JSON: %v", agent.ErrInvalidCommand, err)
	}
	cmd.ContainerID = strings.TrimSpace(cmd.ContainerID)
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Image = strings.TrimSpace(cmd.Image)

	switch cmd.Action {
	case ActionStart, ActionStop, ActionRestart, ActionRetireAgent, ActionGetLogs:
		if cmd.ContainerID == "" {
			return cmd, fmt.Errorf("%w: %s requires container_id", agent.ErrInvalidCommand, cmd.Action)
		}
	case ActionCreateAgent:
		if cmd.Name == "" {
			return cmd, fmt.Errorf("%w: agent name is required", agent.ErrInvalidCommand)
		}
	case "":
		return cmd, fmt.Errorf("%w: missing action", agent.ErrInvalidCommand)
	default:
		return cmd, fmt.Errorf("%w: unknown action %q", agent.ErrInvalidCommand, cmd.Action)
	}

	if cmd.Tail != nil && *cmd.Tail < 0 {
		return cmd, fmt.Errorf("%w: tail must not be negative", agent.ErrInvalidCommand)
	}
	return cmd, nil
}
