// Package notify formats and delivers task status change notifications for
// the worker. Delivery is a structured log line; wiring a mail or chat
// provider behind Notify is a deployment concern.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/mshirdel/projectflow/internal/domain"
)

type StatusChangeNotifier struct{}

func NewStatusChangeNotifier() StatusChangeNotifier {
	return StatusChangeNotifier{}
}

// Message renders a human-readable line for one status change.
func (n StatusChangeNotifier) Message(event domain.TaskStatusEvent) string {
	if event.FromStatus == domain.TaskBlocked {
		return fmt.Sprintf("task #%d (%s) is unblocked and back to %s", event.TaskID, event.Title, event.ToStatus)
	}

	return fmt.Sprintf("task #%d (%s) moved from %s to %s", event.TaskID, event.Title, event.FromStatus, event.ToStatus)
}

func (n StatusChangeNotifier) Notify(event domain.TaskStatusEvent) error {
	slog.Info("task status notification",
		"message", n.Message(event),
		"task_id", event.TaskID,
		"project_id", event.ProjectID,
		"changed_by", event.ChangedBy,
	)

	return nil
}
