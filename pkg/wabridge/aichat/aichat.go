// Package aichat talks to the conversational AI backend.
//
// The backend answers in one of three shapes, checked in this order:
//
//	{"content": "..."}                             TextField
//	{"choices": [{"message": {"content": "..."}}]} ChoiceList
//	"..."                                          BareString
//
// Only a body matching none of them is a malformed response.
package aichat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jholhewres/wabridge/pkg/wabridge/provider"
)

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Config holds AI backend settings.
type Config struct {
	// URL is the full chat endpoint.
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"-"`
	Model   string        `yaml:"model"`
	Channel string        `yaml:"channel"`
	Timeout time.Duration `yaml:"timeout"`
}

// Caller is the subset of the provider gateway used here.
type Caller interface {
	Call(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

// Client asks the AI backend for replies.
type Client struct {
	cfg    Config
	gw     Caller
	logger *slog.Logger
}

// New creates a Client.
func New(cfg Config, gw Caller, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "claude"
	}
	if cfg.Channel == "" {
		cfg.Channel = "whatsapp"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, gw: gw, logger: logger.With("component", "aichat")}
}

// chatRequest is the wire body of a chat call.
type chatRequest struct {
	Messages    []Turn `json:"messages"`
	Model       string `json:"model"`
	Channel     string `json:"channel"`
	EnableTools bool   `json:"enableTools"`
}

// Error is a user-presentable chat failure. Its message is safe to show in
// a chat ("Request timed out", "API error: 502").
type Error struct {
	Message string
	Failure *provider.Failure
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error {
	if e.Failure == nil {
		return nil
	}
	return e.Failure
}

// Ask sends the system prompt followed by turns and returns the reply text.
func (c *Client) Ask(ctx context.Context, turns []Turn, systemPrompt string, enableTools bool) (string, error) {
	messages := make([]Turn, 0, len(turns)+1)
	messages = append(messages, Turn{Role: RoleSystem, Content: systemPrompt})
	messages = append(messages, turns...)

	req, err := provider.NewJSONRequest("chat", c.cfg.URL, chatRequest{
		Messages:    messages,
		Model:       c.cfg.Model,
		Channel:     c.cfg.Channel,
		EnableTools: enableTools,
	}, c.cfg.Timeout)
	if err != nil {
		return "", &Error{Message: err.Error()}
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.gw.Call(ctx, req)
	if err != nil {
		return "", c.userError(err)
	}

	reply, err := DecodeReply(resp.Body)
	if err != nil {
		c.logger.Error("unexpected chat response format", "body", truncate(string(resp.Body), 300))
		return "", c.userError(err)
	}
	c.logger.Debug("chat reply", "shape", reply.Shape.String(), "len", len(reply.Text), "tools", enableTools)
	return reply.Text, nil
}

func (c *Client) userError(err error) *Error {
	f, ok := provider.AsFailure(err)
	if !ok {
		return &Error{Message: err.Error()}
	}
	switch f.Kind {
	case provider.FailureTimeout:
		return &Error{Message: "Request timed out", Failure: f}
	case provider.FailureHTTP:
		if f.Status > 0 {
			c.logger.Error("chat API error", "status", f.Status, "body", f.Detail)
			return &Error{Message: fmt.Sprintf("API error: %d", f.Status), Failure: f}
		}
		return &Error{Message: "API unreachable", Failure: f}
	default:
		return &Error{Message: "Unexpected response format", Failure: f}
	}
}

// Shape identifies which reply layout matched.
type Shape int

const (
	ShapeTextField Shape = iota
	ShapeChoiceList
	ShapeBareString
)

func (s Shape) String() string {
	switch s {
	case ShapeTextField:
		return "text_field"
	case ShapeChoiceList:
		return "choice_list"
	case ShapeBareString:
		return "bare_string"
	default:
		return "unknown"
	}
}

// Reply is a decoded chat answer.
type Reply struct {
	Shape Shape
	Text  string
}

type textField struct {
	Content string `json:"content"`
}

type choiceList struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// DecodeReply tries each shape in order.
func DecodeReply(body []byte) (Reply, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var tf textField
		if json.Unmarshal(body, &tf) == nil && tf.Content != "" {
			return Reply{Shape: ShapeTextField, Text: tf.Content}, nil
		}
		var cl choiceList
		if json.Unmarshal(body, &cl) == nil && len(cl.Choices) > 0 && cl.Choices[0].Message.Content != "" {
			return Reply{Shape: ShapeChoiceList, Text: cl.Choices[0].Message.Content}, nil
		}
	}
	var s string
	if json.Unmarshal(body, &s) == nil && s != "" {
		return Reply{Shape: ShapeBareString, Text: s}, nil
	}
	return Reply{}, provider.Malformed("no reply text in response")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
