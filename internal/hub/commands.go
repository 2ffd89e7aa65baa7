package hub

import (
	"context"
	"encoding/json"

	"echopulse/internal/containerizer"
	"echopulse/pkg/logging"
)

// HandleCommand executes one inbound message from o. Replies go to o only.
// Invalid input produces an error reply; the observer stays connected.
func (h *Hub) HandleCommand(ctx context.Context, o Observer, raw []byte) {
	cmd, err := ParseCommand(raw)
	if err != nil {
		logging.Debug("Hub", "Rejected command from %s: %v", o.ID(), err)
		h.reply(ctx, o, errorMessage("%v", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.CommandTimeout)
	defer cancel()

	switch cmd.Action {
	case ActionStart, ActionStop, ActionRestart:
		h.handleControl(ctx, o, cmd)
	case ActionCreateAgent:
		h.handleCreate(ctx, o, cmd)
	case ActionRetireAgent:
		h.handleRetire(ctx, o, cmd)
	case ActionGetLogs:
		h.handleLogs(ctx, o, cmd)
	}
}

func (h *Hub) handleControl(ctx context.Context, o Observer, cmd Command) {
	logging.Info("Hub", "Received command: %s on %s", cmd.Action, logging.ShortID(cmd.ContainerID))

	var err error
	done := string(cmd.Action) + "ed"
	switch cmd.Action {
	case ActionStart:
		err = h.runtime.StartContainer(ctx, cmd.ContainerID)
	case ActionStop:
		err = h.runtime.StopContainer(ctx, cmd.ContainerID)
		done = "stopped"
	case ActionRestart:
		err = h.runtime.RestartContainer(ctx, cmd.ContainerID)
	}

	if err != nil {
		logging.Warn("Hub", "Command %s on %s failed: %v", cmd.Action, logging.ShortID(cmd.ContainerID), err)
		h.reply(ctx, o, receipt(false, "Error performing '%s' on container %s: %v", cmd.Action, cmd.ContainerID, err))
	} else {
		h.reply(ctx, o, receipt(true, "Container %s %s.", cmd.ContainerID, done))
	}

	// A failed call may still have changed the container's state.
	h.requestCycle()
}

func (h *Hub) handleCreate(ctx context.Context, o Observer, cmd Command) {
	image := cmd.Image
	if image == "" {
		image = h.config.DefaultImage
	}
	logging.Info("Hub", "Request to create agent %s from image %s", cmd.Name, image)

	id, err := h.runtime.CreateAgent(ctx, containerizer.AgentSpec{Name: cmd.Name, Image: image})
	if err != nil {
		logging.Warn("Hub", "Failed to create agent %s: %v", cmd.Name, err)
		h.reply(ctx, o, errorMessage("Failed to create agent: %v", err))
		return
	}

	logging.Info("Hub", "Created agent %s as container %s", cmd.Name, logging.ShortID(id))
	h.reply(ctx, o, receipt(true, "Agent %s created successfully.", cmd.Name))
	h.requestCycle()
}

func (h *Hub) handleRetire(ctx context.Context, o Observer, cmd Command) {
	logging.Info("Hub", "Request to retire agent %s", logging.ShortID(cmd.ContainerID))

	if err := h.runtime.StopContainer(ctx, cmd.ContainerID); err != nil {
		// The record is retired regardless; a still running container comes
		// back on the next cycle.
		logging.Warn("Hub", "Could not stop %s while retiring: %v", logging.ShortID(cmd.ContainerID), err)
	}

	if err := h.repo.Deactivate(ctx, cmd.ContainerID, h.now().UTC()); err != nil {
		logging.Error("Hub", err, "Failed to retire agent %s", logging.ShortID(cmd.ContainerID))
		h.reply(ctx, o, errorMessage("Failed to retire agent %s: %v", cmd.ContainerID, err))
		return
	}

	h.reply(ctx, o, receipt(true, "Agent %s retired successfully.", cmd.ContainerID))
	h.requestCycle()
}

func (h *Hub) handleLogs(ctx context.Context, o Observer, cmd Command) {
	tail := h.config.LogsTail
	if cmd.Tail != nil && *cmd.Tail > 0 {
		tail = *cmd.Tail
	}

	msg := LogsMessage{Type: TypeLogs, ContainerID: cmd.ContainerID}
	logs, err := h.runtime.ContainerLogs(ctx, cmd.ContainerID, tail)
	if err != nil {
		msg.Logs = "Error fetching logs: " + err.Error()
	} else {
		msg.Success = true
		msg.Logs = logs
	}
	h.reply(ctx, o, msg)
	logging.Debug("Hub", "Sent logs for %s to %s", logging.ShortID(cmd.ContainerID), o.ID())
}

func (h *Hub) reply(ctx context.Context, o Observer, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("Hub", err, "Failed to encode reply")
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.SendTimeout)
	defer cancel()
	if err := o.Send(sendCtx, data); err != nil {
		// The connection's read loop will notice and disconnect.
		logging.Warn("Hub", "Failed to reply to observer %s: %v", o.ID(), err)
	}
}
