package prompt

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// InlineDocLimit caps how much of each inline knowledge document is
// injected into the system prompt.
const InlineDocLimit = 15000

type Document struct {
	Title   string
	Content string
}

type Chunk struct {
	DocumentTitle string
	Heading       string
	Content       string
	Similarity    float32
}

type AssessmentSummary struct {
	Title   string
	Answers map[string]string
}

type ExampleConversation struct {
	UserMessage      string
	AssistantMessage string
}

// Input collects everything that can contribute to the system prompt.
// Sections render only when their source data is non-empty, in a fixed
// order: base prompt, inline docs, retrieved chunks, user context,
// assessments, remembered insights, example conversations.
type Input struct {
	BasePrompt  string
	InlineDocs  []Document
	Chunks      []Chunk
	UserContext string
	Assessments []AssessmentSummary
	Insights    string
	Examples    []ExampleConversation
}

const systemPromptTemplate = `{{ .BasePrompt }}
{{- if .InlineDocs }}

## Reference material
{{- range .InlineDocs }}

### {{ .Title }}
{{ trunc 15000 .Content }}
{{- end }}
{{- end }}
{{- if .Chunks }}

## Relevant knowledge
The following excerpts were retrieved because they relate to the user's message:
{{- range .Chunks }}
- [{{ .DocumentTitle }}{{ if .Heading }} / {{ .Heading }}{{ end }}] {{ .Content }}
{{- end }}
{{- end }}
{{- if .UserContext }}

## About the user
{{ .UserContext }}
{{- end }}
{{- if .Assessments }}

## Assessment answers
{{- range .Assessments }}

### {{ .Title }}
{{- range $q, $a := .Answers }}
- {{ $q }}: {{ $a }}
{{- end }}
{{- end }}
{{- end }}
{{- if .Insights }}

## What you remember about the user
{{ .Insights }}
{{- end }}
{{- if .Examples }}

## Example exchanges
{{- range .Examples }}

User: {{ .UserMessage }}
Assistant: {{ .AssistantMessage }}
{{- end }}
{{- end }}`

var systemTmpl = template.Must(
	template.New("systemPrompt").Funcs(sprig.FuncMap()).Parse(systemPromptTemplate),
)

// Assemble renders the final system prompt string.
func Assemble(in Input) (string, error) {
	buf := bytes.NewBuffer([]byte{})
	if err := systemTmpl.Execute(buf, in); err != nil {
		return "", err
	}
	return buf.String(), nil
}
