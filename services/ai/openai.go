// Package ai implements revision.Generator with the OpenAI chat completion API.
package ai

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/revision"
)

//go:embed prompt/revision_timetable.yaml
var timetablePromptYAML []byte

type prompt struct {
	SystemPrompt string `yaml:"system_prompt"`
	UserPrompt   string `yaml:"user_prompt"`
}

type timetableResponse struct {
	TimetableHTML string `json:"timetableHtml"`
}

type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	system  string
	user    *template.Template
}

var _ revision.Generator = (*OpenAI)(nil) // interface compliance check

func NewOpenAI(conf *core.Config) (*OpenAI, error) {
	var p prompt
	if err := yaml.Unmarshal(timetablePromptYAML, &p); err != nil {
		return nil, errors.Wrap(err, "parsing prompt yaml")
	}
	userTmpl, err := template.New("user_prompt").Option("missingkey=error").Parse(p.UserPrompt)
	if err != nil {
		return nil, errors.Wrap(err, "parsing user prompt")
	}

	config := openai.DefaultConfig(conf.OpenAI.APIKey)
	if conf.OpenAI.BaseURL != "" {
		config.BaseURL = conf.OpenAI.BaseURL
	}
	model := conf.OpenAI.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: conf.OpenAI.Timeout,
		system:  p.SystemPrompt,
		user:    userTmpl,
	}, nil
}

func (ai *OpenAI) GenerateTimetable(ctx context.Context, req revision.Request) (string, error) {
	var userPrompt bytes.Buffer
	if err := ai.user.Execute(&userPrompt, req); err != nil {
		return "", errors.Wrap(err, "rendering user prompt")
	}

	if ai.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ai.timeout)
		defer cancel()
	}

	resp, err := ai.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: ai.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: ai.system},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt.String()},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return extractHTML(resp.Choices[0].Message.Content), nil
}

// extractHTML returns the timetableHtml field of content, or content itself when it is not the expected JSON.
func extractHTML(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	content = strings.TrimSpace(content)

	var tr timetableResponse
	if err := json.Unmarshal([]byte(content), &tr); err == nil && tr.TimetableHTML != "" {
		return tr.TimetableHTML
	}
	return content
}
