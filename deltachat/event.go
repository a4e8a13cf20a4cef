package deltachat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event types handled by this module. The server emits many more, their
// payload is available in Event.Raw.
const (
	EventInfo              = "Info"
	EventWarning           = "Warning"
	EventError             = "Error"
	EventIncomingMsg       = "IncomingMsg"
	EventConfigureProgress = "ConfigureProgress"
)

// Event is a decoded event notification.
type Event struct {
	ContextID AccountID
	Type      string
	Msg       string
	ChatID    ChatID
	MsgID     MsgID

	// Raw is the event object as received.
	Raw json.RawMessage
}

func (ev *Event) String() string {
	switch ev.Type {
	case EventInfo, EventWarning, EventError:
		return fmt.Sprintf("%s[%d]: %s", ev.Type, ev.ContextID, ev.Msg)
	case EventIncomingMsg:
		return fmt.Sprintf("%s[%d]: chat=%d msg=%d", ev.Type, ev.ContextID, ev.ChatID, ev.MsgID)
	}
	return fmt.Sprintf("%s[%d]: %s", ev.Type, ev.ContextID, ev.Raw)
}

// ErrInvalidEvent is returned by ParseEvent for payloads without an event
// type.
var ErrInvalidEvent = errors.New("invalid event")

// ParseEvent decodes the params of an event notification:
// {"contextId": 1, "event": {"type": "Info", "msg": "..."}}
func ParseEvent(params json.RawMessage) (*Event, error) {
	var envelope struct {
		ContextID AccountID       `json:"contextId"`
		Event     json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(params, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
	}
	var body struct {
		Type   string `json:"type"`
		Msg    string `json:"msg"`
		ChatID ChatID `json:"chatId"`
		MsgID  MsgID  `json:"msgId"`
	}
	if len(envelope.Event) == 0 {
		return nil, fmt.Errorf("%w: missing event object", ErrInvalidEvent)
	}
	if err := json.Unmarshal(envelope.Event, &body); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
	}
	if body.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return &Event{
		ContextID: envelope.ContextID,
		Type:      body.Type,
		Msg:       body.Msg,
		ChatID:    body.ChatID,
		MsgID:     body.MsgID,
		Raw:       envelope.Event,
	}, nil
}
