package app

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/ideaboard/internal/notify"
)

// mutationDoneMsg reports the outcome of a user action.
type mutationDoneMsg struct {
	op     string
	report *notify.BatchReport
	err    error
}

// markRead returns a command that marks id read.
func (m Model) markRead(id string) tea.Cmd {
	mu := m.mutations
	return func() tea.Msg {
		err := mu.MarkRead(context.Background(), id)
		return mutationDoneMsg{op: "mark read", err: err}
	}
}

// markAllRead returns a command that marks every unread notification read.
func (m Model) markAllRead() tea.Cmd {
	mu := m.mutations
	return func() tea.Msg {
		report, err := mu.MarkAllRead(context.Background())
		return mutationDoneMsg{op: "mark all read", report: &report, err: err}
	}
}

// remove returns a command that deletes id.
func (m Model) remove(id string) tea.Cmd {
	mu := m.mutations
	return func() tea.Msg {
		err := mu.Remove(context.Background(), id)
		return mutationDoneMsg{op: "remove", err: err}
	}
}

// clearAll returns a command that deletes every notification.
func (m Model) clearAll() tea.Cmd {
	mu := m.mutations
	return func() tea.Msg {
		err := mu.ClearAll(context.Background())
		return mutationDoneMsg{op: "clear all", err: err}
	}
}

// describe returns the status bar text for a finished mutation.
func (msg mutationDoneMsg) describe() (string, bool) {
	switch {
	case errors.Is(msg.err, notify.ErrPartialFailure) && msg.report != nil:
		return fmt.Sprintf("marked %d of %d read, %d rolled back",
			len(msg.report.Succeeded), len(msg.report.Requested), len(msg.report.Failed)), true
	case errors.Is(msg.err, notify.ErrNotFound):
		return "notification no longer exists", true
	case msg.err != nil:
		return fmt.Sprintf("%s failed: %v", msg.op, msg.err), true
	case msg.report != nil && len(msg.report.Requested) == 0:
		return "nothing to mark read", false
	case msg.report != nil:
		return fmt.Sprintf("marked %d read", len(msg.report.Succeeded)), false
	}
	return "", false
}
