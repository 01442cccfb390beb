package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yoockh/civicvoice/internal/call"
	"github.com/yoockh/civicvoice/internal/providers/live"
	"github.com/yoockh/civicvoice/internal/sink"
)

const (
	SinkModeAsync  = "async"
	SinkModeStream = "stream"
)

// App is the call desk configuration read from the environment.
type App struct {
	Port string

	GeminiAPIKey          string
	Model                 string
	Voice                 string
	ThinkingBudget        int32
	SystemInstructionFile string

	SinkURL     string
	SinkMode    string
	SinkTimeout time.Duration
	SinkWorkers int

	GracePeriod time.Duration
	GCSBucket   string
}

func LoadApp() (App, error) {
	a := App{
		Port:                  envOr("PORT", "8080"),
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		Model:                 envOr("GEMINI_MODEL", live.DefaultModel),
		Voice:                 envOr("GEMINI_VOICE", live.DefaultVoice),
		ThinkingBudget:        live.DefaultThinkingBudget,
		SystemInstructionFile: os.Getenv("SYSTEM_INSTRUCTION_FILE"),
		SinkURL:               envOr("SINK_URL", sink.DefaultURL),
		SinkMode:              strings.ToLower(envOr("SINK_MODE", SinkModeAsync)),
		SinkTimeout:           15 * time.Second,
		SinkWorkers:           2,
		GracePeriod:           call.DefaultGracePeriod,
		GCSBucket:             os.Getenv("GCS_BUCKET"),
	}

	if a.GeminiAPIKey == "" {
		return a, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	if a.SinkMode != SinkModeAsync && a.SinkMode != SinkModeStream {
		return a, fmt.Errorf("SINK_MODE must be %q or %q, got %q", SinkModeAsync, SinkModeStream, a.SinkMode)
	}

	if v := os.Getenv("GEMINI_THINKING_BUDGET"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return a, fmt.Errorf("GEMINI_THINKING_BUDGET: invalid value %q", v)
		}
		a.ThinkingBudget = int32(n)
	}
	if v := os.Getenv("SINK_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return a, fmt.Errorf("SINK_WORKERS: invalid value %q", v)
		}
		a.SinkWorkers = n
	}

	var err error
	if a.GracePeriod, err = envDuration("AUTO_END_GRACE", a.GracePeriod); err != nil {
		return a, err
	}
	if a.SinkTimeout, err = envDuration("SINK_TIMEOUT", a.SinkTimeout); err != nil {
		return a, err
	}
	return a, nil
}

// Setup is the peer session configuration for every call.
func (a App) Setup(instruction string) live.Setup {
	return live.Setup{
		Model:             a.Model,
		Voice:             a.Voice,
		SystemInstruction: instruction,
		ThinkingBudget:    a.ThinkingBudget,
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
