package cmd

import (
	"fmt"

	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

// formatBlock renders a Focus Block as "Thu 09:15-10:00 (45m)".
func formatBlock(b models.FocusBlock) string {
	s := fmt.Sprintf("%s %s-%s (%s)",
		b.Start.Format("Mon 2006-01-02"),
		b.Start.Format("15:04"),
		b.End.Format("15:04"),
		timer.FormatDuration(b.Duration()))
	if b.Truncated {
		s += " [truncated]"
	}
	return s
}

// reportExpired notes a session that the expiry sweep cleared during this
// operation, so the user learns why yesterday's task is gone.
func reportExpired(sess *models.TaskSession) {
	if sess == nil {
		return
	}
	ui.Warning("Previous session on #%d %q had expired and was cleared.",
		sess.WorkItemID, sess.Title)
}
