package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pseudocoder/inkwell/internal/diff"
	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

func TestDecode_KnownTypes(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Message
	}{
		{
			name:  "start ack",
			frame: `{"type":"start_ack","session_id":"s-1"}`,
			want:  StartAck{SessionID: "s-1"},
		},
		{
			name:  "scene brief",
			frame: `{"type":"scene_brief","title":"Harbor","brief":"Night falls."}`,
			want:  SceneBrief{Title: "Harbor", Brief: "Night falls."},
		},
		{
			name:  "draft v1",
			frame: `{"type":"draft_v1","text":"Once upon a time"}`,
			want:  DraftV1{Draft{Text: "Once upon a time"}},
		},
		{
			name:  "final draft",
			frame: `{"type":"final_draft","text":"The end"}`,
			want:  FinalDraft{Draft{Text: "The end"}},
		},
		{
			name:  "error",
			frame: `{"type":"error","code":"quota","message":"out of credits"}`,
			want:  ErrorMessage{Code: "quota", Message: "out of credits"},
		},
		{
			name:  "progress shape",
			frame: `{"type":"drafting","status":"running","message":"writing scene 2"}`,
			want:  Progress{Kind: "drafting", Status: "running", Message: "writing scene 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Type(), got.Type())
		})
	}
}

func TestDecode_ReviewWithHunks(t *testing.T) {
	frame := `{
		"type": "review",
		"summary": "tighten the opening",
		"hunks": [
			{"header": "@@ -2,1 +2,2 @@", "changes": [
				{"type": "delete", "content": "B"},
				{"type": "add", "content": "B2"},
				{"type": "add", "content": "B3"}
			]}
		]
	}`

	msg, err := Decode([]byte(frame))
	require.NoError(t, err)

	review, ok := msg.(Review)
	require.True(t, ok, "expected Review, got %T", msg)
	assert.Equal(t, "tighten the opening", review.Summary)

	hunks := ProposedHunks(msg)
	require.Len(t, hunks, 1)
	assert.Equal(t, []diff.Change{diff.DeleteLine("B"), diff.AddLine("B2"), diff.AddLine("B3")}, hunks[0].Changes)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		code  string
	}{
		{"invalid json", `{"type":`, apperrors.CodeProtocolDecodeFailed},
		{"not an object", `1700000000000`, apperrors.CodeProtocolDecodeFailed},
		{"missing type", `{"status":"ok"}`, apperrors.CodeProtocolDecodeFailed},
		{"wrong payload shape", `{"type":"draft_v1","text":42}`, apperrors.CodeProtocolDecodeFailed},
		{"bad change type", `{"type":"review","hunks":[{"changes":[{"type":"edit","content":"x"}]}]}`, apperrors.CodeProtocolDecodeFailed},
		{"unknown type without status", `{"type":"mystery"}`, apperrors.CodeProtocolUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame))
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}
}

func TestProposedHunks_NoneForOtherTypes(t *testing.T) {
	assert.Nil(t, ProposedHunks(StartAck{}))
	assert.Nil(t, ProposedHunks(Progress{Status: "ok"}))
}

func TestOutbound_MarshalFlattensPayload(t *testing.T) {
	data, err := json.Marshal(Feedback("make it darker"))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "feedback", fields["type"])
	assert.Equal(t, "make it darker", fields["message"])
}

func TestOutbound_TypeWinsOverPayload(t *testing.T) {
	data, err := json.Marshal(Outbound{Type: TypeSave, Payload: map[string]any{"type": "spoofed"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"save"}`, string(data))
}

func TestHeartbeatProbe(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	assert.Equal(t, "1700000000123", string(HeartbeatProbe(ts)))
}

func TestEndpoints(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000/ws/abc123/session", SessionEndpoint("localhost:8000", "abc123", false))
	assert.Equal(t, "wss://api.example.com/ws/abc123/session", SessionEndpoint("api.example.com/", "abc123", true))
	assert.Equal(t, "ws://h/ws/a%2Fb/session", SessionEndpoint("h", "a/b", false))
	assert.Equal(t, "wss://h/ws/trace", TraceEndpoint("h", true))

	assert.Equal(t, "wss", SchemeFor("https://app.example.com"))
	assert.Equal(t, "ws", SchemeFor("http://localhost:3000"))
	assert.Equal(t, "ws", SchemeFor("::not a url"))
}
