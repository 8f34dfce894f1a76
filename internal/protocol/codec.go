package protocol

import (
	"encoding/json"
	"strconv"
	"time"

	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

// envelope is the part of every inbound frame needed to pick a payload type.
type envelope struct {
	Type   Type    `json:"type"`
	Status *string `json:"status"`
}

// Decode parses an inbound frame.
//
// Errors are *errors.CodedError values: protocol.decode_failed for invalid
// JSON, a missing type, or a payload that does not fit its type, and
// protocol.unknown_type for an unrecognized type without a status field.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.DecodeFailed("invalid JSON frame", err)
	}
	if env.Type == "" {
		return nil, apperrors.DecodeFailed("frame has no type", nil)
	}

	switch env.Type {
	case TypeStartAck:
		return decodeAs[StartAck](env.Type, data)
	case TypeReview:
		return decodeAs[Review](env.Type, data)
	case TypeSceneBrief:
		return decodeAs[SceneBrief](env.Type, data)
	case TypeDraftV1:
		return decodeAs[DraftV1](env.Type, data)
	case TypeFinalDraft:
		return decodeAs[FinalDraft](env.Type, data)
	case TypeError:
		return decodeAs[ErrorMessage](env.Type, data)
	}

	if env.Status == nil {
		return nil, apperrors.UnknownType(string(env.Type))
	}
	p, err := decodeAs[Progress](env.Type, data)
	if err != nil {
		return nil, err
	}
	progress := p.(Progress)
	progress.Kind = env.Type
	return progress, nil
}

func decodeAs[T Message](t Type, data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, apperrors.DecodeFailed("invalid "+string(t)+" payload", err)
	}
	return v, nil
}

// Outbound is a frame sent by the client. Payload fields are flattened
// beside the type when the frame is encoded.
type Outbound struct {
	Type    Type
	Payload map[string]any
}

// MarshalJSON encodes the frame as a flat object with a "type" field.
func (o Outbound) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(o.Payload)+1)
	for k, v := range o.Payload {
		fields[k] = v
	}
	fields["type"] = o.Type
	return json.Marshal(fields)
}

// Outbound frame types used by the workspace.
const (
	TypeStart    Type = "start"
	TypeFeedback Type = "feedback"
	TypeSave     Type = "save"
	TypeAnalyze  Type = "analyze"
)

// Feedback builds a feedback frame carrying free text from the writer.
func Feedback(text string) Outbound {
	return Outbound{Type: TypeFeedback, Payload: map[string]any{"message": text}}
}

// HeartbeatProbe encodes a liveness probe: the plain decimal unix
// millisecond timestamp of t.
func HeartbeatProbe(t time.Time) []byte {
	return strconv.AppendInt(nil, t.UnixMilli(), 10)
}
