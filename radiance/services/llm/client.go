// radiance/services/llm/client.go
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"radiance/radiance/utils/logging"

	"go.uber.org/zap"
)

// CompletionError carries the upstream HTTP status so callers can decide
// retry policy.
type CompletionError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion request failed: %s - %s", e.Status, e.Body)
}

// Client talks to any OpenAI-compatible chat-completions endpoint
// (Perplexity, OpenAI, Groq, local proxies).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Usage   Usage  `json:"usage"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Run executes a single non-streaming completion request.
func (c *Client) Run(ctx context.Context, req ChatRequest) (CompletionResult, error) {
	defer logging.LogDuration(ctx, "llm_run")()

	req.Stream = false
	resp, err := c.post(ctx, req)
	if err != nil {
		return CompletionResult{}, err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResult{}, fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return CompletionResult{}, fmt.Errorf("no choices in completion response")
	}
	return CompletionResult{
		ID:      parsed.ID,
		Model:   parsed.Model,
		Created: parsed.Created,
		Content: parsed.Choices[0].Message.Content,
		Usage:   parsed.Usage,
	}, nil
}

// RunStream executes a streaming completion request and yields increments on
// the returned channel. Malformed SSE events are skipped individually; the
// stream ends with a single Final chunk and the channel is then closed. A
// clean end ([DONE] or EOF) carries a nil Err; a severed transport or a
// cancelled context puts the terminal error on the Final chunk, so consumers
// must not treat the accumulated text as a complete reply.
func (c *Client) RunStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	defer logging.LogDuration(ctx, "llm_run_stream")()

	req.Stream = true
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)

	go func() {
		defer func() {
			close(ch)
			resp.Body.Close()
		}()

		reader := bufio.NewReader(resp.Body)

		emitFinal := func(termErr error) {
			select {
			case ch <- StreamChunk{Final: true, Err: termErr}:
			case <-ctx.Done():
			}
		}

		for {
			select {
			case <-ctx.Done():
				logging.AppLogger.Info("llm stream context cancelled")
				emitFinal(ctx.Err())
				return
			default:
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					emitFinal(nil)
					return
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					emitFinal(ctxErr)
					return
				}
				logging.ErrorLogger.Error("llm stream severed", zap.Error(err))
				emitFinal(fmt.Errorf("completion stream severed: %w", err))
				return
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			// SSE frames carry a "data:" prefix; skip comments and other fields.
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			if data == "[DONE]" {
				emitFinal(nil)
				return
			}

			var event chatStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				logging.ErrorLogger.Error("llm stream event parse error",
					zap.Error(err), zap.String("raw_line", data))
				continue
			}

			for _, choice := range event.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				select {
				case ch <- StreamChunk{Delta: choice.Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

func (c *Client) post(ctx context.Context, req ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &CompletionError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(b),
		}
	}
	return resp, nil
}
