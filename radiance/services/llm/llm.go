// radiance/services/llm/llm.go
package llm

import "context"

// Completions is the narrow surface the pipeline depends on. The real client
// talks to an OpenAI-compatible chat-completions backend; tests substitute
// fakes.
type Completions interface {
	Run(ctx context.Context, req ChatRequest) (CompletionResult, error)
	RunStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
}

// Message content is either a plain string or an ordered list of multimodal
// parts; build them with TextMessage / MultimodalMessage.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func TextMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

func MultimodalMessage(role string, parts []ContentPart) Message {
	return Message{Role: role, Content: parts}
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type CompletionResult struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// StreamChunk is one increment of a streamed completion. Final marks the end
// of the stream; the channel is closed right after it. Err rides the terminal
// chunk when the stream died before a clean end ([DONE] or EOF), so callers
// can tell truncation apart from success; it is never serialized to clients.
type StreamChunk struct {
	Delta string `json:"delta"`
	Final bool   `json:"is_final"`
	Err   error  `json:"-"`
}
