package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIClient implements Client against any OpenAI-compatible
// chat-completions endpoint, per spec.md §6's LLM transport contract.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient builds a transport for the given apiKey/baseUrl pair.
// baseURL may be empty to use the default OpenAI endpoint.
func NewOpenAIClient(apiKey, baseURL string, defaultHeaders map[string]string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	for k, v := range defaultHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

func toOpenAIParams(req *Request) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case RoleTool:
			msgs = append(msgs, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  rawSchemaToParams(t.Parameters),
			},
		})
	}
	return params
}

func rawSchemaToParams(raw []byte) openai.FunctionParameters {
	if len(raw) == 0 {
		return openai.FunctionParameters{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return openai.FunctionParameters{}
	}
	return openai.FunctionParameters(m)
}

// Complete issues a single non-streaming request.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	params := toOpenAIParams(req)
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &Response{}, nil
	}
	choice := resp.Choices[0]
	out := &Response{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// openaiStreamer adapts an SSE chat-completion stream to Streamer,
// accumulating nothing itself: per spec.md §4.7 the coalescing belongs to
// C6 (internal/llmstream), not the transport.
type openaiStreamer struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

// Stream issues a streaming request and returns a Streamer of raw deltas.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	params := toOpenAIParams(req)
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	return &openaiStreamer{stream: stream}, nil
}

func (s *openaiStreamer) Recv() (Chunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return Chunk{}, err
		}
		return Chunk{Type: ChunkDone, Done: true}, nil
	}
	evt := s.stream.Current()
	if len(evt.Choices) == 0 {
		return Chunk{Type: ChunkContent}, nil
	}
	delta := evt.Choices[0].Delta
	if delta.Content != "" {
		return Chunk{Type: ChunkContent, Content: delta.Content}, nil
	}
	if len(delta.ToolCalls) > 0 {
		tc := delta.ToolCalls[0]
		return Chunk{
			Type: ChunkToolCallDelta,
			ToolDelta: &ToolCallDelta{
				Index:        int(tc.Index),
				ID:           tc.ID,
				Name:         tc.Function.Name,
				ArgumentsRaw: tc.Function.Arguments,
			},
		}, nil
	}
	if evt.Choices[0].FinishReason != "" {
		return Chunk{Type: ChunkDone, Done: true}, nil
	}
	return Chunk{Type: ChunkContent}, nil
}

func (s *openaiStreamer) Close() error {
	return s.stream.Close()
}
