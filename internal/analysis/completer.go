package analysis

import (
	"context"
	"strings"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	appErr "github.com/consultra/engine/pkg/errors"
)

// Completer is the generative-analysis boundary. The reply is expected to
// contain a single JSON object (optionally fenced) somewhere in the text;
// every caller tolerates absence or malformed JSON and falls back to
// deterministic heuristics, so a failing backend never halts the pipeline.
type Completer interface {
	Complete(ctx context.Context, instruction, contextText string) (string, error)
}

// LLMConfig configures the chat-model-backed Completer.
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type llmCompleter struct {
	model model.ToolCallingChatModel
}

// NewLLMCompleter builds a Completer over an OpenAI-compatible chat model.
func NewLLMCompleter(ctx context.Context, cfg LLMConfig) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, appErr.New(appErr.CodeInvalid, "llm api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	mc := &einoopenai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: timeout,
	}
	if cfg.BaseURL != "" {
		mc.BaseURL = cfg.BaseURL
	}
	m, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "create chat model failed")
	}
	return &llmCompleter{model: m}, nil
}

func (c *llmCompleter) Complete(ctx context.Context, instruction, contextText string) (string, error) {
	msgs := []*schema.Message{
		{Role: schema.System, Content: instruction},
		{Role: schema.User, Content: contextText},
	}
	out, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeUnavailable, "generative backend call failed")
	}
	return out.Content, nil
}

// extractJSON pulls the first balanced JSON object out of a model reply,
// tolerating markdown code fences and surrounding prose.
func extractJSON(reply string) (string, bool) {
	s := strings.TrimSpace(reply)

	if strings.Contains(s, "```") {
		var inner []string
		inBlock := false
		for _, line := range strings.Split(s, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inBlock = !inBlock
				continue
			}
			if inBlock {
				inner = append(inner, line)
			}
		}
		if len(inner) > 0 {
			s = strings.Join(inner, "\n")
		}
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
