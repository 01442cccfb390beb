package transcript

import (
	"testing"
	"time"

	"github.com/yoockh/civicvoice/internal/models"
)

func TestAssembler_CallerBeforeAgent(t *testing.T) {
	var a Assembler
	now := time.Unix(1700000000, 0)

	a.Append(models.RoleAgent, " Namaste, ")
	a.Append(models.RoleCaller, "hello ")
	a.Append(models.RoleAgent, "how can I help? ")
	a.Append(models.RoleCaller, "there")

	turns := a.Complete(now)
	if len(turns) != 2 {
		t.Fatalf("turns=%d, want 2", len(turns))
	}
	if turns[0].Role != models.RoleCaller || turns[0].Text != "hello there" {
		t.Fatalf("first turn=%+v", turns[0])
	}
	if turns[1].Role != models.RoleAgent || turns[1].Text != "Namaste, how can I help?" {
		t.Fatalf("second turn=%+v", turns[1])
	}
	if !turns[0].Timestamp.Equal(now) || !turns[1].Timestamp.Equal(now) {
		t.Fatalf("timestamps not stamped with completion time")
	}
}

func TestAssembler_SecondCompleteIsEmpty(t *testing.T) {
	var a Assembler
	a.Append(models.RoleCaller, "water pipe burst")
	if n := len(a.Complete(time.Now())); n != 1 {
		t.Fatalf("first complete=%d", n)
	}
	if n := len(a.Complete(time.Now())); n != 0 {
		t.Fatalf("second complete=%d, want 0", n)
	}
}

func TestAssembler_WhitespaceOnlyIsSkipped(t *testing.T) {
	var a Assembler
	a.Append(models.RoleCaller, "   \n")
	a.Append(models.RoleAgent, "ok")
	turns := a.Complete(time.Now())
	if len(turns) != 1 || turns[0].Role != models.RoleAgent {
		t.Fatalf("turns=%+v", turns)
	}
	if a.Partial(models.RoleCaller) != "" || a.Partial(models.RoleAgent) != "" {
		t.Fatalf("accumulators not cleared")
	}
}

func TestAssembler_PartialAndUnknownRole(t *testing.T) {
	var a Assembler
	a.Append(models.RoleAgent, "partial ")
	a.Append(models.Role("system"), "ignored")
	if got := a.Partial(models.RoleAgent); got != "partial " {
		t.Fatalf("partial=%q", got)
	}
	if got := a.Partial(models.Role("system")); got != "" {
		t.Fatalf("unknown role partial=%q", got)
	}
	a.Reset()
	if got := a.Partial(models.RoleAgent); got != "" {
		t.Fatalf("after reset=%q", got)
	}
}
