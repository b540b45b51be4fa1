package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"ActionSentinel/internal/model"
)

// maxListed caps the ready actions listed in one report.
const maxListed = 20

// FormatCycleReport formats a cycle result into a Telegram message.
func FormatCycleReport(res model.CycleResult) string {
	var b strings.Builder

	if !res.Successful {
		b.WriteString(fmt.Sprintf("❌ <b>ActionSentinel cycle failed</b> | %s\n\n", res.StartedAt.Format("2006-01-02 15:04:05")))
		b.WriteString(fmt.Sprintf("Trigger: %s\n", res.Trigger))
		b.WriteString(fmt.Sprintf("Error: %s\n", html.EscapeString(res.Error)))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("🔔 <b>ActionSentinel cycle</b> | %s\n\n", res.StartedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Messages: %d (synced %d, skipped %d, failed %d)\n", res.MessagesProcessed, res.Synced, res.SyncSkipped, res.SyncFailed))
	b.WriteString(fmt.Sprintf("Evaluated: %d | Ready: %d | Errors: %d\n", res.ActionsEvaluated(), res.ActionsReady(), res.EvaluationErrors()))
	b.WriteString(fmt.Sprintf("Duration: %s\n", res.Duration.Round(time.Millisecond)))

	ready := res.Ready()
	if len(ready) == 0 {
		return b.String()
	}

	b.WriteString("\n💰 <b>Ready for execution:</b>\n")
	for i, r := range ready {
		if i == maxListed {
			b.WriteString(fmt.Sprintf("  … and %d more\n", len(ready)-maxListed))
			break
		}
		a := r.Action
		b.WriteString(fmt.Sprintf("  #%d %s %s/%s target %.4g (user %s)\n",
			a.ID, a.Kind, a.Domain, html.EscapeString(a.Symbol), a.TargetPrice, html.EscapeString(a.UserID)))
	}
	return b.String()
}

// StatusReport is the monitoring view rendered by FormatStatus.
type StatusReport struct {
	CacheSize  int
	Phase      string
	Running    bool
	Runs       int64
	Skipped    int64
	NextRun    time.Time
	LastResult *model.CycleResult
}

// FormatStatus formats the scheduler state for display.
func FormatStatus(s StatusReport) string {
	var b strings.Builder
	b.WriteString("📦 <b>ActionSentinel status</b>\n\n")
	b.WriteString(fmt.Sprintf("Cached actions: %d\n", s.CacheSize))
	b.WriteString(fmt.Sprintf("Phase: %s (running: %v)\n", s.Phase, s.Running))
	b.WriteString(fmt.Sprintf("Cycles run: %d | skipped: %d\n", s.Runs, s.Skipped))
	if !s.NextRun.IsZero() {
		b.WriteString(fmt.Sprintf("Next run: %s\n", s.NextRun.Format("2006-01-02 15:04:05")))
	}
	if s.LastResult != nil {
		b.WriteString(fmt.Sprintf("Last cycle: %s\n", html.EscapeString(s.LastResult.String())))
	}
	return b.String()
}

// FormatHelp lists the supported commands.
func FormatHelp() string {
	return "Available commands:\n• /cycle run a cycle now\n• /status show cache and scheduler state\n• /reload reload all actions from the database"
}
