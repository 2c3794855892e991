package context

import (
	"strings"
	"testing"

	"github.com/robusta-dev/holmes/internal/tokens"
	"github.com/robusta-dev/holmes/pkg/models"
)

const testModel = "claude-sonnet-4-20250514"

func msg(role models.Role, content string) *models.Message {
	return &models.Message{Role: role, Content: content}
}

func TestTruncateDataIdempotent(t *testing.T) {
	acct := tokens.NewAccountant(testModel)
	tr := NewTruncator(acct, 0)

	data := strings.Repeat("log line with some detail. ", 500)
	once := tr.TruncateData(data, 100)
	if once == data {
		t.Fatal("data was not truncated")
	}
	if !strings.Contains(once, TruncationMarker) {
		t.Errorf("no truncation marker in %q", once[len(once)-80:])
	}
	if got := acct.CountText(once); got > 100 {
		t.Errorf("truncated size = %d tokens, want <= 100", got)
	}

	twice := tr.TruncateData(once, 100)
	if twice != once {
		t.Error("second pass changed already-fitting data")
	}
}

func TestTruncateDataUnderBudgetUnchanged(t *testing.T) {
	tr := NewTruncator(tokens.NewAccountant(testModel), 0)
	data := "short result"
	if got := tr.TruncateData(data, 100); got != data {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestFitShrinksToolMessagesOnly(t *testing.T) {
	t.Setenv(tokens.EnvContextWindow, "2000")
	t.Setenv(tokens.EnvMaxOutput, "100")
	acct := tokens.NewAccountant(testModel)
	tr := NewTruncator(acct, 0)

	system := msg(models.RoleSystem, "you are an agent")
	user := msg(models.RoleUser, "check the logs")
	tool := msg(models.RoleTool, strings.Repeat("verbose log output. ", 600))
	tool.ToolName = "fetch_logs"

	history := []*models.Message{system, user, tool}
	if tr.Fits(history) {
		t.Fatal("fixture should exceed the budget before truncation")
	}
	if !tr.Fit(history) {
		t.Fatal("Fit failed to shrink tool output into budget")
	}
	if system.Content != "you are an agent" || user.Content != "check the logs" {
		t.Error("non-tool messages were modified")
	}
	if !strings.Contains(tool.Content, TruncationMarker) {
		t.Error("tool message lacks truncation marker")
	}
	if !tr.Fits(history) {
		t.Error("history does not fit after successful Fit")
	}
}

func TestFitFailsWithoutToolMessages(t *testing.T) {
	t.Setenv(tokens.EnvContextWindow, "600")
	t.Setenv(tokens.EnvMaxOutput, "100")
	tr := NewTruncator(tokens.NewAccountant(testModel), 0)

	history := []*models.Message{
		msg(models.RoleSystem, "agent"),
		msg(models.RoleUser, strings.Repeat("a very long question. ", 300)),
	}
	if tr.Fit(history) {
		t.Error("Fit succeeded with nothing truncatable")
	}
}

func TestFitCapsOversizedResultsEvenInsideBudget(t *testing.T) {
	acct := tokens.NewAccountant(testModel)
	tr := NewTruncator(acct, 50)

	tool := msg(models.RoleTool, strings.Repeat("data ", 500))
	history := []*models.Message{msg(models.RoleUser, "q"), tool}

	if !tr.Fit(history) {
		t.Fatal("history should fit overall")
	}
	if got := acct.CountText(tool.Content); got > 50 {
		t.Errorf("tool result = %d tokens, want per-tool cap 50 applied", got)
	}
}

func TestBudgetArithmetic(t *testing.T) {
	t.Setenv(tokens.EnvContextWindow, "10000")
	t.Setenv(tokens.EnvMaxOutput, "1000")
	acct := tokens.NewAccountant(testModel)
	tr := NewTruncator(acct, 0)

	want := 10000 - 1000 - DefaultSafetyMargin
	if got := tr.Budget(); got != want {
		t.Errorf("Budget = %d, want %d", got, want)
	}
}
