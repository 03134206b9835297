package telephony

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Controller is the provider-agnostic call-control contract used by sessions.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Play and Listen return once the command is accepted; completion arrives
//   later as an Event on the sink the adapter was started with.
type Controller interface {
	Answer(ctx context.Context, callID string) error
	Play(ctx context.Context, callID, mediaURI, tag string) error
	Listen(ctx context.Context, callID string, p ListenPolicy) error
	Hangup(ctx context.Context, callID string) error
	Originate(ctx context.Context, req OriginateRequest) (string, error)
}

// EventSink receives control-channel events. Implementations must not block
// for long; the adapter delivers events from its own goroutines.
type EventSink interface {
	HandleEvent(ctx context.Context, e Event)
}

type EventType string

const (
	EventStarted          EventType = "started"
	EventEnded            EventType = "ended"
	EventPlaybackFinished EventType = "playback_finished"
	EventSilenceDetected  EventType = "silence_detected"
)

// Event is one control-channel notification for a call.
type Event struct {
	Type   EventType
	CallID string
	At     time.Time

	// Started only.
	Caller string
	Vars   map[string]string

	// PlaybackFinished only; echoes the tag passed to Play.
	Tag string

	// SilenceDetected only.
	RecordingPath  string
	RecordingBytes int64

	// Err is set when the playback or recording failed.
	Err error
}

// ListenPolicy bounds one recording turn.
type ListenPolicy struct {
	// Name is the recording's base name, without extension.
	Name        string
	MaxSilence  time.Duration
	MaxDuration time.Duration
}

// OriginateRequest places an outbound call into the agent application.
type OriginateRequest struct {
	Endpoint string
	CallerID string
	Timeout  time.Duration
	Vars     map[string]string
}

// Channel variables carried on originated calls.
const (
	VarLeadID           = "LEAD_ID"
	VarLeadName         = "LEAD_NAME"
	VarLeadNumber       = "LEAD_NUMBER"
	VarCampaignID       = "CAMPAIGN_ID"
	VarKnowledgeRef     = "KNOWLEDGE_REF"
	VarIsFollowUp       = "IS_FOLLOWUP"
	VarPriorSummary     = "PRIOR_SUMMARY"
	VarPriorAppointment = "PRIOR_APPOINTMENT"
)

// CallVars lists the variables an adapter reads on call start.
var CallVars = []string{
	VarLeadID, VarLeadName, VarLeadNumber, VarCampaignID,
	VarKnowledgeRef, VarIsFollowUp, VarPriorSummary, VarPriorAppointment,
}

var ErrChannelGone = errors.New("telephony: channel gone")

// IsChannelGone reports whether err means the call no longer exists.
// ARI reports a vanished channel as a 404 with "Channel not found".
func IsChannelGone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChannelGone) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "channel not found") || strings.Contains(msg, "404")
}
