package jupyter

import (
	"encoding/json"

	"github.com/knitj/knitj/knitjerr"
)

// Recognized msg_type values for the Jupyter wire protocol.
const (
	TypeExecuteRequest = "execute_request"
	TypeExecuteReply   = "execute_reply"
	TypeDisplayData    = "display_data"
	TypeStream         = "stream"
	TypeExecuteInput   = "execute_input"
	TypeExecuteResult  = "execute_result"
	TypeError          = "error"
	TypeStatus         = "status"
	TypeShutdownReply  = "shutdown_reply"
	TypeShutdownReq    = "shutdown_request"
)

// ExecutionState is the kernel's busy/idle/starting status.
type ExecutionState string

const (
	StateBusy     ExecutionState = "busy"
	StateIdle     ExecutionState = "idle"
	StateStarting ExecutionState = "starting"
)

// ReplyStatus is the status field of an execute_reply.
type ReplyStatus string

const (
	StatusOK      ReplyStatus = "ok"
	StatusError   ReplyStatus = "error"
	StatusAborted ReplyStatus = "aborted"
)

// StreamContent is the content of a "stream" message.
type StreamContent struct {
	Name string `json:"name"` // "stdout" or "stderr"
	Text string `json:"text"`
}

// DisplayDataContent is the content of a "display_data" message, and of
// the data/metadata fields of an "execute_result".
type DisplayDataContent struct {
	Data      map[string]string      `json:"data"`
	Metadata  map[string]interface{} `json:"metadata"`
	Transient map[string]interface{} `json:"transient,omitempty"`
}

// ExecuteInputContent is the content of an "execute_input" message.
type ExecuteInputContent struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

// ExecuteResultContent is the content of an "execute_result" message.
type ExecuteResultContent struct {
	ExecutionCount int                    `json:"execution_count"`
	Data           map[string]string      `json:"data"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// ErrorContent is the content of an "error" message, and of an
// execute_reply whose status is "error".
type ErrorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// ExecuteReplyContent is the content of an "execute_reply" message. Status
// discriminates which of the optional fields are populated.
type ExecuteReplyContent struct {
	Status         ReplyStatus `json:"status"`
	ExecutionCount int         `json:"execution_count"`
	// populated when Status == StatusError
	EName     string   `json:"ename,omitempty"`
	EValue    string   `json:"evalue,omitempty"`
	Traceback []string `json:"traceback,omitempty"`
}

// IsError reports whether this reply carries an error.
func (c *ExecuteReplyContent) IsError() bool { return c.Status == StatusError }

// StatusContent is the content of a "status" message.
type StatusContent struct {
	ExecutionState ExecutionState `json:"execution_state"`
}

// ShutdownReplyContent is the content of a "shutdown_reply" message.
type ShutdownReplyContent struct {
	Restart bool   `json:"restart"`
	Status  string `json:"status"`
}

// Message is the interface implemented by every parsed content variant.
// The coordinator/document type-switches on the concrete type.
type Message interface {
	msgType() string
}

func (*StreamContent) msgType() string        { return TypeStream }
func (*DisplayDataContent) msgType() string   { return TypeDisplayData }
func (*ExecuteInputContent) msgType() string  { return TypeExecuteInput }
func (*ExecuteResultContent) msgType() string { return TypeExecuteResult }
func (*ErrorContent) msgType() string         { return TypeError }
func (*ExecuteReplyContent) msgType() string  { return TypeExecuteReply }
func (*StatusContent) msgType() string        { return TypeStatus }
func (*ShutdownReplyContent) msgType() string { return TypeShutdownReply }

// ParseContent parses a raw content payload given its msg_type into a
// typed Message. An unrecognized msg_type is a knitjerr.KindProtocol
// error: it is a programmer/environment bug, not a per-cell failure.
func ParseContent(msgType string, raw json.RawMessage) (Message, error) {
	var target Message
	switch msgType {
	case TypeStream:
		target = new(StreamContent)
	case TypeDisplayData:
		target = new(DisplayDataContent)
	case TypeExecuteInput:
		target = new(ExecuteInputContent)
	case TypeExecuteResult:
		target = new(ExecuteResultContent)
	case TypeError:
		target = new(ErrorContent)
	case TypeExecuteReply:
		target = new(ExecuteReplyContent)
	case TypeStatus:
		target = new(StatusContent)
	case TypeShutdownReply:
		target = new(ShutdownReplyContent)
	default:
		return nil, knitjerr.New(knitjerr.KindProtocol, "unknown jupyter message type: "+msgType)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, knitjerr.Wrap(knitjerr.KindProtocol, err, "decoding content for "+msgType)
		}
	}
	return target, nil
}
