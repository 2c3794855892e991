package agent

import (
	"log/slog"
	"sort"

	"github.com/robusta-dev/holmes/internal/toolsets"
)

// ToolRegistry holds the tools contributed by enabled toolsets, keyed by
// unique name, together with a precomputed schema view for the LLM.
// A registry is immutable after construction and safe for concurrent
// reads; refresh swaps in a whole new registry instead of mutating.
type ToolRegistry struct {
	tools   map[string]registeredTool
	schemas []ToolSchema
}

type registeredTool struct {
	tool    toolsets.Tool
	toolset string
}

// NewToolRegistry builds a registry from toolset states.
//
// Only tools from enabled toolsets are registered. When two toolsets
// expose the same tool name, the later registration wins and a warning
// is logged. At most one logging toolset contributes: the first enabled
// non-default one if any, otherwise the first enabled default one.
func NewToolRegistry(states []toolsets.State, logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &ToolRegistry{tools: map[string]registeredTool{}}

	for _, state := range selectToolsets(states, logger) {
		ts := state.Toolset
		for _, tool := range ts.Tools() {
			name := tool.Name()
			if prev, ok := r.tools[name]; ok {
				logger.Warn("duplicate tool name, later registration wins",
					"tool", name,
					"kept_toolset", ts.Name(),
					"shadowed_toolset", prev.toolset,
				)
			}
			r.tools[name] = registeredTool{tool: tool, toolset: ts.Name()}
		}
	}

	r.schemas = buildSchemas(r.tools)
	return r
}

// selectToolsets filters states down to the ones that contribute tools,
// applying the single-logging-toolset policy.
func selectToolsets(states []toolsets.State, logger *slog.Logger) []toolsets.State {
	var (
		selected   []toolsets.State
		logging    []toolsets.State
		hasUserLog bool
	)
	for _, state := range states {
		if state.Toolset == nil || !state.Active() {
			continue
		}
		if lt, ok := state.Toolset.(toolsets.LoggingToolset); ok {
			logging = append(logging, state)
			if !lt.IsDefaultLogging() {
				hasUserLog = true
			}
			continue
		}
		selected = append(selected, state)
	}

	for _, state := range logging {
		lt := state.Toolset.(toolsets.LoggingToolset)
		if hasUserLog && lt.IsDefaultLogging() {
			logger.Debug("default logging toolset filtered out",
				"toolset", state.Toolset.Name())
			continue
		}
		selected = append(selected, state)
		break
	}
	return selected
}

func buildSchemas(tools map[string]registeredTool) []ToolSchema {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]ToolSchema, 0, len(names))
	for _, name := range names {
		tool := tools[name].tool
		properties := map[string]any{}
		var required []string
		params := tool.Parameters()

		paramNames := make([]string, 0, len(params))
		for p := range params {
			paramNames = append(paramNames, p)
		}
		sort.Strings(paramNames)
		for _, p := range paramNames {
			param := params[p]
			prop := map[string]any{"type": param.Type}
			if param.Description != "" {
				prop["description"] = param.Description
			}
			properties[p] = prop
			if param.Required {
				required = append(required, p)
			}
		}

		parameters := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			parameters["required"] = required
		}
		schemas = append(schemas, ToolSchema{
			Name:        name,
			Description: tool.Description(),
			Parameters:  parameters,
		})
	}
	return schemas
}

// Lookup returns the tool registered under name.
func (r *ToolRegistry) Lookup(name string) (toolsets.Tool, bool) {
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// Schemas returns the precomputed schema view for the LLM.
func (r *ToolRegistry) Schemas() []ToolSchema {
	return r.schemas
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int { return len(r.tools) }
