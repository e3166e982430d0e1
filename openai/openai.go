package openai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reference: https://platform.openai.com/docs/api-reference/chat/create
type ChatCompletionRequest struct {
	// A list of messages comprising the conversation so far.
	Messages []Message `json:"messages"`

	Model string `json:"model"`

	// Between 0 and 2. Higher values like 0.8 will make the output more random,
	// while lower values like 0.2 will make it more focused and deterministic.
	Temperature *float32 `json:"temperature,omitempty"`

	// An upper bound for the number of tokens that can be generated for a completion.
	MaxTokens *int32 `json:"max_tokens,omitempty"`

	// A unique identifier representing your end-user.
	User *string `json:"user,omitempty"`
}

type Message struct {
	Role string `json:"role"`
	// Either a plain string or a list of typed parts.
	Content *MessageContent `json:"content"`
	Name    *string         `json:"name,omitempty"`
}

type MessageContent struct {
	String *string
	Parts  []Part
}

func (sop *MessageContent) MarshalJSON() ([]byte, error) {
	if sop.String != nil {
		return json.Marshal(sop.String)
	}
	return json.Marshal(sop.Parts)
}

func (sop *MessageContent) UnmarshalJSON(data []byte) error {
	var stringValue string
	if err := json.Unmarshal(data, &stringValue); err == nil {
		sop.String = &stringValue
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err == nil {
		sop.Parts = parts
		return nil
	}
	return fmt.Errorf("expected string or parts, got %s", data)
}

type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ChatCompletionResponse struct {
	Id      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Object  string   `json:"object"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int32   `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	TotalTokens      int32 `json:"total_tokens"`
}

// UserText joins the string contents of all "user" role messages with
// newlines, preserving order. Part-typed contents contribute their text parts.
func UserText(messages []Message) string {
	var contents []string
	for _, message := range messages {
		if message.Role != "user" || message.Content == nil {
			continue
		}
		if message.Content.String != nil {
			contents = append(contents, *message.Content.String)
			continue
		}
		for _, part := range message.Content.Parts {
			if part.Type == "text" && part.Text != "" {
				contents = append(contents, part.Text)
			}
		}
	}
	return strings.Join(contents, "\n")
}

// TextMessage builds a single-turn user message from plain text.
func TextMessage(role string, text string) Message {
	return Message{Role: role, Content: &MessageContent{String: &text}}
}
