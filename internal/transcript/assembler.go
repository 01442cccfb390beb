// Package transcript turns streamed partial transcriptions into turns.
package transcript

import (
	"strings"
	"time"

	"github.com/yoockh/civicvoice/internal/models"
)

// Assembler accumulates partial text for the caller and the agent until the
// peer signals that the turn is complete. It is not safe for concurrent use.
type Assembler struct {
	caller strings.Builder
	agent  strings.Builder
}

func (a *Assembler) Append(role models.Role, fragment string) {
	switch role {
	case models.RoleCaller:
		a.caller.WriteString(fragment)
	case models.RoleAgent:
		a.agent.WriteString(fragment)
	}
}

// Partial returns the untrimmed text accumulated so far for role.
func (a *Assembler) Partial(role models.Role) string {
	switch role {
	case models.RoleCaller:
		return a.caller.String()
	case models.RoleAgent:
		return a.agent.String()
	default:
		return ""
	}
}

// Complete emits the caller turn then the agent turn, skipping whichever is
// empty after trimming, and clears both accumulators.
func (a *Assembler) Complete(now time.Time) []models.Turn {
	var out []models.Turn
	if text := strings.TrimSpace(a.caller.String()); text != "" {
		out = append(out, models.Turn{Role: models.RoleCaller, Text: text, Timestamp: now})
	}
	if text := strings.TrimSpace(a.agent.String()); text != "" {
		out = append(out, models.Turn{Role: models.RoleAgent, Text: text, Timestamp: now})
	}
	a.Reset()
	return out
}

func (a *Assembler) Reset() {
	a.caller.Reset()
	a.agent.Reset()
}
