package protocol

import (
	"encoding/json"
	"fmt"
)

type Action string

const (
	ActionUpdateContent Action = "UPDATE_CONTENT"
	ActionUpdateTitle   Action = "UPDATE_TITLE"
	ActionNoteCreated   Action = "NOTE_CREATED"
	ActionError         Action = "ERROR"
)

// Message is the single frame exchanged with the sync server. Exactly one of
// Content/Title is set on an UPDATE_* message; UserID is stamped by the client
// on outbound messages; Message carries the text of an ERROR frame.
type Message struct {
	Action  Action `json:"action"`
	NoteID  string `json:"noteId,omitempty"`
	Content string `json:"content,omitempty"`
	Title   string `json:"title,omitempty"`
	UserID  int    `json:"userId,omitempty"`
	Message string `json:"message,omitempty"`
}

// DecodeError marks an unparsable inbound frame. Callers log it and drop the
// frame; it is never fatal.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed sync message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses a wire frame. Frames with an unrecognized action decode
// successfully so that newer server message kinds pass through harmlessly.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &msg, nil
}
