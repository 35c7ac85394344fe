package router

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

//go:embed prompt/classify.md
var classifyPromptRaw string

//go:embed prompt/dispatch.md
var dispatchPromptRaw string

var (
	classifyPromptTmpl = template.Must(template.New("classify").Parse(classifyPromptRaw))
	dispatchPromptTmpl = template.Must(template.New("dispatch").Parse(dispatchPromptRaw))
)

func renderClassifyPrompt() (string, error) {
	var buf bytes.Buffer
	if err := classifyPromptTmpl.Execute(&buf, map[string]any{
		"ToolName": ClassifyToolName,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute classify prompt template")
	}
	return buf.String(), nil
}

func renderDispatchPrompt(intent model.Intent, toolPrompts string, maxToolCalls int) (string, error) {
	var buf bytes.Buffer
	if err := dispatchPromptTmpl.Execute(&buf, map[string]any{
		"Intent":       intent,
		"ToolPrompts":  toolPrompts,
		"MaxToolCalls": maxToolCalls,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute dispatch prompt template")
	}
	return buf.String(), nil
}
