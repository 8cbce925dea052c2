// Package notify carries status events from the engine to live
// clients. Delivery is fire-and-forget over a publish/subscribe bus:
// publish failures are logged and never fatal to the engine.
package notify

import (
	"time"

	"github.com/wehubfusion/Argus/pkg/model"
	"github.com/wehubfusion/Argus/pkg/status"
)

// EventType enumerates the notifications the engine pushes.
type EventType string

const (
	EventParameterResult EventType = "parameter-result"
	EventTabStatus       EventType = "tab-status"
	EventPageStatus      EventType = "page-status"
	EventSessionStatus   EventType = "session-status"
	EventSessionExpired  EventType = "session-expired"
	EventPageInProgress  EventType = "page-in-progress"
	EventParameterCount  EventType = "in-flight-parameter-count"
)

// Event is one status push. Fields beyond Type and SessionID are
// populated per event type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	CreatedAt string    `json:"createdAt"`

	Page          string                  `json:"page,omitempty"`
	Tab           string                  `json:"tab,omitempty"`
	ParameterPath string                  `json:"parameterPath,omitempty"`
	Status        status.ValidationStatus `json:"status,omitempty"`

	// Parameter carries the full terminal value on parameter-result.
	Parameter *model.Parameter `json:"parameter,omitempty"`

	// InFlight carries the parameter count on in-flight-parameter-count.
	InFlight int `json:"inFlight,omitempty"`

	// Message carries a human-readable reason, e.g. on session-expired.
	Message string `json:"message,omitempty"`
}

func newEvent(t EventType, sessionID string) Event {
	return Event{
		Type:      t,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// ParameterResultEvent reports a parameter's terminal value.
func ParameterResultEvent(p *model.Parameter) Event {
	e := newEvent(EventParameterResult, p.SessionID)
	e.Page = p.PageName
	e.Tab = p.TabName
	e.ParameterPath = p.Path
	e.Status = p.Status
	e.Parameter = p
	return e
}

// TabStatusEvent reports a tab's rolled-up status.
func TabStatusEvent(sessionID, page, tab string, st status.ValidationStatus) Event {
	e := newEvent(EventTabStatus, sessionID)
	e.Page = page
	e.Tab = tab
	e.Status = st
	return e
}

// PageStatusEvent reports a page's rolled-up status.
func PageStatusEvent(sessionID, page string, st status.ValidationStatus) Event {
	e := newEvent(EventPageStatus, sessionID)
	e.Page = page
	e.Status = st
	return e
}

// SessionStatusEvent reports the binary session verdict.
func SessionStatusEvent(sessionID string, st status.ValidationStatus) Event {
	e := newEvent(EventSessionStatus, sessionID)
	e.Status = st
	return e
}

// SessionExpiredEvent reports that a session was expired or killed.
func SessionExpiredEvent(sessionID, message string) Event {
	e := newEvent(EventSessionExpired, sessionID)
	e.Message = message
	return e
}

// PageInProgressEvent reports that a page's execution began.
func PageInProgressEvent(sessionID, page string) Event {
	e := newEvent(EventPageInProgress, sessionID)
	e.Page = page
	e.Status = status.InProgress
	return e
}

// ParameterCountEvent reports how many parameters a page put in flight.
func ParameterCountEvent(sessionID, page string, inFlight int) Event {
	e := newEvent(EventParameterCount, sessionID)
	e.Page = page
	e.InFlight = inFlight
	return e
}
