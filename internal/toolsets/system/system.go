// Package system provides a minimal built-in toolset with no external
// prerequisites, so a fresh install can exercise the full tool-calling
// path end to end.
package system

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/robusta-dev/holmes/internal/toolsets"
	"github.com/robusta-dev/holmes/pkg/models"
)

// envAllowlist restricts system_env to non-sensitive variables.
var envAllowlist = map[string]bool{
	"HOME":       true,
	"HOSTNAME":   true,
	"KUBECONFIG": true,
	"LANG":       true,
	"PATH":       true,
	"PWD":        true,
	"SHELL":      true,
	"TZ":         true,
	"USER":       true,
}

// Toolset bundles the built-in system tools.
type Toolset struct{}

// New returns the system toolset.
func New() *Toolset { return &Toolset{} }

func (t *Toolset) Name() string { return "system" }

func (t *Toolset) Tools() []toolsets.Tool {
	return []toolsets.Tool{&timeTool{}, &envTool{}}
}

// CheckPrerequisites always succeeds; the system toolset has none.
func (t *Toolset) CheckPrerequisites(ctx context.Context) error { return nil }

type timeTool struct{}

func (t *timeTool) Name() string { return "system_time" }

func (t *timeTool) Description() string {
	return "Returns the current time on the machine running the agent, in UTC and local time. Useful for correlating log timestamps."
}

func (t *timeTool) Parameters() map[string]toolsets.Param {
	return map[string]toolsets.Param{}
}

func (t *timeTool) Invoke(ctx context.Context, params map[string]any) *models.StructuredToolResult {
	now := time.Now()
	return &models.StructuredToolResult{
		Status: models.StatusSuccess,
		Data: fmt.Sprintf("utc: %s\nlocal: %s\nunix: %d",
			now.UTC().Format(time.RFC3339), now.Format(time.RFC3339), now.Unix()),
		Params: params,
	}
}

type envTool struct{}

func (t *envTool) Name() string { return "system_env" }

func (t *envTool) Description() string {
	return "Reads a non-sensitive environment variable (HOME, PATH, KUBECONFIG, ...) from the machine running the agent."
}

func (t *envTool) Parameters() map[string]toolsets.Param {
	return map[string]toolsets.Param{
		"name": {
			Type:        "string",
			Description: "Environment variable name",
			Required:    true,
		},
	}
}

func (t *envTool) OneLiner(params map[string]any) string {
	name, _ := params["name"].(string)
	return "Reading environment variable " + name
}

func (t *envTool) Invoke(ctx context.Context, params map[string]any) *models.StructuredToolResult {
	name, _ := params["name"].(string)
	name = strings.ToUpper(strings.TrimSpace(name))
	if !envAllowlist[name] {
		return &models.StructuredToolResult{
			Status: models.StatusError,
			Error:  fmt.Sprintf("environment variable %q is not in the allowlist", name),
			Params: params,
		}
	}
	value, ok := os.LookupEnv(name)
	if !ok {
		return &models.StructuredToolResult{
			Status: models.StatusNoData,
			Data:   fmt.Sprintf("%s is not set (os: %s)", name, runtime.GOOS),
			Params: params,
		}
	}
	return &models.StructuredToolResult{
		Status: models.StatusSuccess,
		Data:   fmt.Sprintf("%s=%s", name, value),
		Params: params,
	}
}
