package system

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/robusta-dev/holmes/pkg/models"
)

func TestToolsetShape(t *testing.T) {
	ts := New()
	if ts.Name() != "system" {
		t.Errorf("Name = %q", ts.Name())
	}
	if err := ts.CheckPrerequisites(context.Background()); err != nil {
		t.Errorf("CheckPrerequisites: %v", err)
	}
	tools := ts.Tools()
	if len(tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(tools))
	}
	for _, tool := range tools {
		if tool.Name() == "" || tool.Description() == "" {
			t.Errorf("tool %T missing name or description", tool)
		}
	}
}

func TestTimeTool(t *testing.T) {
	res := (&timeTool{}).Invoke(context.Background(), nil)
	if res.Status != models.StatusSuccess {
		t.Fatalf("status = %s", res.Status)
	}
	for _, want := range []string{"utc:", "local:", "unix:"} {
		if !strings.Contains(res.Data, want) {
			t.Errorf("data missing %q: %s", want, res.Data)
		}
	}
}

func TestEnvToolAllowedVariable(t *testing.T) {
	t.Setenv("HOME", "/home/oncall")

	res := (&envTool{}).Invoke(context.Background(), map[string]any{"name": "HOME"})
	if res.Status != models.StatusSuccess || res.Data != "HOME=/home/oncall" {
		t.Errorf("result = %+v", res)
	}
}

func TestEnvToolNormalizesName(t *testing.T) {
	t.Setenv("HOME", "/home/oncall")

	res := (&envTool{}).Invoke(context.Background(), map[string]any{"name": "  home "})
	if res.Status != models.StatusSuccess {
		t.Errorf("result = %+v", res)
	}
}

func TestEnvToolBlocksSensitiveVariables(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-secret")

	res := (&envTool{}).Invoke(context.Background(), map[string]any{"name": "ANTHROPIC_API_KEY"})
	if res.Status != models.StatusError {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if strings.Contains(res.Data, "sk-ant-secret") || strings.Contains(res.Error, "sk-ant-secret") {
		t.Error("secret value leaked into the result")
	}
	if !strings.Contains(res.Error, "allowlist") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestEnvToolUnsetVariable(t *testing.T) {
	// Setenv registers the restore; Unsetenv then drives the no-data path.
	t.Setenv("TZ", "placeholder")
	os.Unsetenv("TZ")

	res := (&envTool{}).Invoke(context.Background(), map[string]any{"name": "TZ"})
	if res.Status != models.StatusNoData {
		t.Errorf("status = %s, want no_data", res.Status)
	}
	if !strings.Contains(res.Data, "TZ is not set") {
		t.Errorf("data = %q", res.Data)
	}
}

func TestEnvToolOneLiner(t *testing.T) {
	got := (&envTool{}).OneLiner(map[string]any{"name": "PATH"})
	if got != "Reading environment variable PATH" {
		t.Errorf("OneLiner = %q", got)
	}
}
