package llmrelay

// outboundMessage is the JSON payload sent to the LLM service. The id is a
// locally generated correlation id; the service must echo it back on the
// matching reply.
type outboundMessage struct {
	ID          string                 `json:"id"`
	Message     string                 `json:"message"`
	Model       string                 `json:"model"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature float64                `json:"temperature"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// inboundMessage is a reply (or error) from the LLM service. Some services
// put the text under "response", others under "content"; token usage may be
// flat or nested under "usage".
type inboundMessage struct {
	ID           string                 `json:"id"`
	Response     string                 `json:"response"`
	Content      string                 `json:"content"`
	Error        string                 `json:"error"`
	Model        string                 `json:"model"`
	TokensUsed   int                    `json:"tokens_used"`
	Usage        *usageInfo             `json:"usage,omitempty"`
	FinishReason string                 `json:"finish_reason"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

type usageInfo struct {
	TotalTokens int `json:"total_tokens"`
}

// Reply is the normalized result of a relay exchange
type Reply struct {
	Content      string                 `json:"content"`
	TokensUsed   int                    `json:"tokens_used"`
	Model        string                 `json:"model"`
	FinishReason string                 `json:"finish_reason"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Fallback     bool                   `json:"fallback"`
}

func (in *inboundMessage) toReply(defaultModel string) *Reply {
	content := in.Response
	if content == "" {
		content = in.Content
	}

	tokens := in.TokensUsed
	if tokens == 0 && in.Usage != nil {
		tokens = in.Usage.TotalTokens
	}

	model := in.Model
	if model == "" {
		model = defaultModel
	}

	finishReason := in.FinishReason
	if finishReason == "" {
		finishReason = "completed"
	}

	return &Reply{
		Content:      content,
		TokensUsed:   tokens,
		Model:        model,
		FinishReason: finishReason,
		Metadata:     in.Metadata,
	}
}
