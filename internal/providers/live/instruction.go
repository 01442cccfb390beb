package live

import (
	_ "embed"
	"os"
	"strings"
	"time"
)

//go:embed agent_prompt.txt
var defaultPrompt string

// urgencySuffix is appended to every instruction so the agent answers the
// greeting trigger immediately.
const urgencySuffix = "\nRespond with EXTREME URGENCY. Minimize Turn-Taking Latency. Do not wait for long pauses. " +
	"If the text input is '" + GreetingTrigger + "', immediately speak the mandatory bilingual greeting."

// Instruction loads the agent prompt from path (the built-in prompt when path
// is empty), fills in today's date and appends the urgency suffix.
func Instruction(path string, now time.Time) (string, error) {
	prompt := defaultPrompt
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		prompt = string(b)
	}
	prompt = strings.ReplaceAll(prompt, "{{DATE}}", now.Format("2006-01-02"))
	return strings.TrimSpace(prompt) + urgencySuffix, nil
}
