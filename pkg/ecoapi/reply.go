package ecoapi

import (
	"bytes"
	"encoding/json"
	"strings"

	"ecoadvisor-go/internal/model"
)

// ReplyKind tags which response shape a chat reply was decoded from.
type ReplyKind int

const (
	ReplyUnrecognized ReplyKind = iota
	ReplyAnswer                 // {"answer": "..."}
	ReplyOutputText             // {"output": {"text": "..."}}
	ReplyText                   // {"text": "..."}
	ReplyPlain                  // plain text body or a bare JSON string
)

// ChatReply is one decoded assistant turn.
type ChatReply struct {
	Kind      ReplyKind
	Text      string
	SessionID string
}

// Answer returns the reply text, or the fixed apology when the shape was not recognized.
func (r ChatReply) Answer() string {
	if r.Kind == ReplyUnrecognized || strings.TrimSpace(r.Text) == "" {
		return model.ApologyText
	}
	return r.Text
}

type replyObject struct {
	Answer *string `json:"answer"`
	Output *struct {
		Text *string `json:"text"`
	} `json:"output"`
	Text         *string `json:"text"`
	SessionID    string  `json:"sessionId"`
	SessionIDAlt string  `json:"session_id"`
}

// DecodeChatReply decodes an unwrapped chat payload. It never fails: unknown shapes
// decode to ReplyUnrecognized.
func DecodeChatReply(payload []byte) ChatReply {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return ChatReply{Kind: ReplyUnrecognized}
	}

	switch payload[0] {
	case '{':
		var obj replyObject
		if err := json.Unmarshal(payload, &obj); err == nil {
			return fromObject(obj)
		}
	case '"':
		var s string
		if err := json.Unmarshal(payload, &s); err == nil {
			return plainReply(s)
		}
	}

	if json.Valid(payload) {
		// 数组、数字等其它 JSON 值
		return ChatReply{Kind: ReplyUnrecognized}
	}
	return plainReply(string(payload))
}

func fromObject(obj replyObject) ChatReply {
	reply := ChatReply{Kind: ReplyUnrecognized, SessionID: obj.SessionID}
	if reply.SessionID == "" {
		reply.SessionID = obj.SessionIDAlt
	}
	switch {
	case obj.Answer != nil && *obj.Answer != "":
		reply.Kind, reply.Text = ReplyAnswer, *obj.Answer
	case obj.Output != nil && obj.Output.Text != nil && *obj.Output.Text != "":
		reply.Kind, reply.Text = ReplyOutputText, *obj.Output.Text
	case obj.Text != nil && *obj.Text != "":
		reply.Kind, reply.Text = ReplyText, *obj.Text
	}
	return reply
}

func plainReply(s string) ChatReply {
	if strings.TrimSpace(s) == "" {
		return ChatReply{Kind: ReplyUnrecognized}
	}
	return ChatReply{Kind: ReplyPlain, Text: s}
}
