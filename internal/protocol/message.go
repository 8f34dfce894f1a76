// Package protocol defines the messages exchanged with the generation backend
// over a session channel.
//
// Inbound frames are flat JSON objects with a required "type" discriminator;
// the type-specific fields sit beside it. Decode turns a frame into one of
// the concrete Message types below, which consumers match with a type switch.
package protocol

import (
	"github.com/pseudocoder/inkwell/internal/diff"
)

// Type identifies the kind of message.
type Type string

const (
	// TypeStartAck confirms the backend accepted a session start request.
	// Message: StartAck
	TypeStartAck Type = "start_ack"

	// TypeReview carries feedback on the current document, optionally with
	// proposed edits as hunks.
	// Message: Review
	TypeReview Type = "review"

	// TypeSceneBrief carries the planning brief for the scene being written.
	// Message: SceneBrief
	TypeSceneBrief Type = "scene_brief"

	// TypeDraftV1 carries the first generated draft.
	// Message: DraftV1
	TypeDraftV1 Type = "draft_v1"

	// TypeFinalDraft carries the final draft after revision.
	// Message: FinalDraft
	TypeFinalDraft Type = "final_draft"

	// TypeError reports a backend-side failure for the session.
	// Message: ErrorMessage
	TypeError Type = "error"
)

// Message is an inbound message. The set of implementations is closed.
type Message interface {
	// Type returns the discriminator the message was decoded from.
	Type() Type

	message()
}

// StartAck confirms a session start.
type StartAck struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Review is backend feedback on the current document.
type Review struct {
	Summary  string      `json:"summary,omitempty"`
	Comments []string    `json:"comments,omitempty"`
	Hunks    []diff.Hunk `json:"hunks,omitempty"`
}

// SceneBrief is the plan for the scene being drafted.
type SceneBrief struct {
	Title string `json:"title,omitempty"`
	Brief string `json:"brief"`
}

// Draft is the shared payload of DraftV1 and FinalDraft.
type Draft struct {
	Text  string      `json:"text"`
	Hunks []diff.Hunk `json:"hunks,omitempty"`
}

// DraftV1 is the first generated draft.
type DraftV1 struct {
	Draft
}

// FinalDraft is the revised, final draft.
type FinalDraft struct {
	Draft
}

// ErrorMessage is a backend-reported failure.
type ErrorMessage struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Progress is the generic progress shape: any message whose type is not
// one of the known kinds but which carries a status. Kind keeps the
// original discriminator.
type Progress struct {
	Kind    Type   `json:"-"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (StartAck) Type() Type     { return TypeStartAck }
func (Review) Type() Type       { return TypeReview }
func (SceneBrief) Type() Type   { return TypeSceneBrief }
func (DraftV1) Type() Type      { return TypeDraftV1 }
func (FinalDraft) Type() Type   { return TypeFinalDraft }
func (ErrorMessage) Type() Type { return TypeError }
func (p Progress) Type() Type   { return p.Kind }

func (StartAck) message()     {}
func (Review) message()       {}
func (SceneBrief) message()   {}
func (DraftV1) message()      {}
func (FinalDraft) message()   {}
func (ErrorMessage) message() {}
func (Progress) message()     {}

// ProposedHunks returns the hunks carried by m, if any.
func ProposedHunks(m Message) []diff.Hunk {
	switch v := m.(type) {
	case Review:
		return v.Hunks
	case DraftV1:
		return v.Hunks
	case FinalDraft:
		return v.Hunks
	default:
		return nil
	}
}
