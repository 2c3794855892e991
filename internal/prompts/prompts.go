// Package prompts renders the system prompts for chat and alert
// investigation runs.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/robusta-dev/holmes/pkg/models"
)

// Capability is one line of the tool listing embedded in prompts.
type Capability struct {
	Name        string
	Description string
}

// Section is one named block of an investigation answer.
type Section struct {
	Title       string
	Description string
}

// DefaultSections is the investigation answer structure used when the
// caller does not supply one.
func DefaultSections() []Section {
	return []Section{
		{Title: "Alert Explanation", Description: "What the alert means in plain language."},
		{Title: "Investigation", Description: "What was checked and what the tools revealed."},
		{Title: "Conclusions and Possible Root Causes", Description: "The most likely causes, with evidence."},
		{Title: "Next Steps", Description: "Concrete remediation or further diagnostic steps."},
	}
}

var chatTemplate = template.Must(template.New("chat").Parse(`You are a tool-calling assistant that troubleshoots production systems.

Answer the user's question by running tools to gather real data before concluding. Never invent resource names, log lines, or metric values: every concrete claim must come from a tool result. If the available tools cannot answer the question, say so and explain what access is missing.

When tool output is truncated, treat it as incomplete and narrow the query instead of guessing at the missing part.
{{if .Capabilities}}
You have access to the following tools:
{{range .Capabilities}}* {{.Name}}: {{.Description}}
{{end}}{{end}}`))

var investigationTemplate = template.Must(template.New("investigation").Parse(`You are an SRE investigating a production alert.

Work the alert like an on-call engineer: form hypotheses, run tools to confirm or rule them out, and ground every statement in tool output. Never invent resource names, log lines, or metric values. Keep exact identifiers (pod names, namespaces, error strings) verbatim in your answer.
{{if .Instructions}}
Runbook instructions for this alert, follow them first:
{{range .Instructions}}* {{.}}
{{end}}{{end}}{{if .Sections}}{{if .Structured}}
Your final answer must be a single JSON object with exactly these keys, one per section:
{{range .Sections}}* "{{.Title}}": {{.Description}}
{{end}}
Set a key to null when you found nothing relevant for it. Output only the JSON object, with no surrounding prose and no code fences.
{{else}}
Structure your final answer with exactly these sections:
{{range .Sections}}# {{.Title}}
{{.Description}}
{{end}}
Omit a section's body only when you found nothing relevant for it, and say so explicitly.
{{end}}{{end}}{{if .Capabilities}}
You have access to the following tools:
{{range .Capabilities}}* {{.Name}}: {{.Description}}
{{end}}{{end}}`))

type chatData struct {
	Capabilities []Capability
}

type investigationData struct {
	Instructions []string
	Sections     []Section
	Capabilities []Capability
	Structured   bool
}

// ChatSystemPrompt renders the system prompt for RunAgent.
func ChatSystemPrompt(capabilities []Capability) string {
	var sb strings.Builder
	if err := chatTemplate.Execute(&sb, chatData{Capabilities: capabilities}); err != nil {
		// Templates are static; execution can only fail on a broken
		// writer, which strings.Builder is not.
		panic(err)
	}
	return strings.TrimSpace(sb.String())
}

// InvestigationSystemPrompt renders the system prompt for
// InvestigateIssue. With structured set, the answer is requested as a
// JSON object keyed by section title, matching SectionsSchema; without
// it, as markdown headings.
func InvestigationSystemPrompt(instructions []string, sections []Section, capabilities []Capability, structured bool) string {
	if len(sections) == 0 {
		sections = DefaultSections()
	}
	var sb strings.Builder
	err := investigationTemplate.Execute(&sb, investigationData{
		Instructions: instructions,
		Sections:     sections,
		Capabilities: capabilities,
		Structured:   structured,
	})
	if err != nil {
		panic(err)
	}
	return strings.TrimSpace(sb.String())
}

// InvestigationAsk renders the user message describing the issue under
// investigation.
func InvestigationAsk(issue *models.Issue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Investigate the following alert.\n\n")
	fmt.Fprintf(&sb, "Name: %s\n", issue.Name)
	if issue.Source != "" {
		fmt.Fprintf(&sb, "Source: %s\n", issue.Source)
	}
	if issue.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", issue.Description)
	}
	if len(issue.RawData) > 0 {
		if payload, err := json.MarshalIndent(issue.RawData, "", "  "); err == nil {
			fmt.Fprintf(&sb, "\nRaw alert payload:\n%s\n", payload)
		}
	}
	return sb.String()
}

// SectionsSchema synthesizes a JSON schema requiring a string property
// per section, used to validate structured investigation answers.
func SectionsSchema(sections []Section) []byte {
	if len(sections) == 0 {
		sections = DefaultSections()
	}
	var sb strings.Builder
	sb.WriteString(`{"type":"object","properties":{`)
	for i, s := range sections {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%q:{\"type\":[\"string\",\"null\"]}", s.Title)
	}
	sb.WriteString(`},"required":[`)
	for i, s := range sections {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%q", s.Title)
	}
	sb.WriteString(`],"additionalProperties":false}`)
	return []byte(sb.String())
}
