package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType identifies the kind of stream-json event.
type EventType string

const (
	EventSystem    EventType = "system"
	EventUser      EventType = "user"
	EventAssistant EventType = "assistant"
	EventToolCall  EventType = "tool_call"
	EventResult    EventType = "result"
	EventError     EventType = "error"
)

// Event is one line of the backend's stream-json output.
type Event struct {
	Type      EventType `json:"type"`
	SubType   string    `json:"subtype,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Model     string    `json:"model,omitempty"`

	Message  *Message                   `json:"message,omitempty"`
	ToolCall map[string]json.RawMessage `json:"tool_call,omitempty"`

	Result     string     `json:"result,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

// Message holds assistant or user message content.
type Message struct {
	Role    string  `json:"role,omitempty"`
	Content []Block `json:"content,omitempty"`
}

// Block is one content block of a message.
type Block struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// ErrorInfo describes an error event.
type ErrorInfo struct {
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Text returns the concatenated text blocks of the message.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range m.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// IsInit returns true if this is a system init event.
func (e *Event) IsInit() bool { return e.Type == EventSystem && e.SubType == "init" }

// IsToolCompleted returns true for a finished tool call.
func (e *Event) IsToolCompleted() bool { return e.Type == EventToolCall && e.SubType == "completed" }

// IsFailure returns true for error events and error results.
func (e *Event) IsFailure() bool {
	return e.Type == EventError || e.Error != nil || (e.Type == EventResult && e.IsError)
}

// ErrorMessage returns the most specific error text the event carries.
func (e *Event) ErrorMessage() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if e.IsError && e.Result != "" {
		return e.Result
	}
	return "unknown error"
}

// ToolName returns the tool kind of a tool_call event: "shell", "edit", ...
// Tool calls are keyed by "<kind>ToolCall".
func (e *Event) ToolName() string {
	for key := range e.ToolCall {
		return strings.TrimSuffix(key, "ToolCall")
	}
	return ""
}

// Describe renders a readable one-line summary of the event, or "" if the
// event is not worth showing.
func (e *Event) Describe() string {
	switch {
	case e.IsFailure():
		return "error: " + e.ErrorMessage()
	case e.IsInit():
		return fmt.Sprintf("session %s (model %s)", e.SessionID, e.Model)
	case e.Type == EventAssistant:
		return strings.TrimSpace(e.Message.Text())
	case e.IsToolCompleted():
		return "tool: " + e.ToolName()
	case e.Type == EventResult:
		return fmt.Sprintf("done in %dms", e.DurationMs)
	}
	return ""
}

// ParseEvent decodes one stream-json line.
func ParseEvent(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return ev, nil
}

// collector folds a stream of events into a Response.
type collector struct {
	resp      Response
	assistant strings.Builder
	result    string
	sawResult bool
	failure   string
}

func (c *collector) add(ev Event) {
	if ev.SessionID != "" && c.resp.SessionID == "" {
		c.resp.SessionID = ev.SessionID
	}
	if line := ev.Describe(); line != "" {
		c.resp.Transcript = append(c.resp.Transcript, line)
	}

	switch {
	case ev.IsInit():
		c.resp.Model = ev.Model
	case ev.Type == EventAssistant:
		c.assistant.WriteString(ev.Message.Text())
	case ev.IsToolCompleted():
		c.resp.ToolCalls++
	}

	if ev.IsFailure() {
		c.failure = ev.ErrorMessage()
		return
	}
	if ev.Type == EventResult {
		c.sawResult = true
		c.result = ev.Result
	}
}

func (c *collector) response() Response {
	r := c.resp
	r.Text = c.result
	if r.Text == "" {
		r.Text = c.assistant.String()
	}
	return r
}
