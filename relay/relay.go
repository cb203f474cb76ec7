// Package relay defines the message contract between the hidden check
// context and the page instance that owns it. The JSON shape of Message is
// part of the public wire contract and must not change.
package relay

import "net/url"

// Message kinds.
const (
	KindFailed    = "sessionCheckFailed"
	KindSucceeded = "sessionCheckSucceeded"
)

// Failure reasons produced by the engine itself. OP-surfaced error codes
// (login_required, interaction_required, ...) pass through verbatim as the
// failure reason.
const (
	ReasonNonceMismatch   = "nonce_mismatch"
	ReasonSubjectMismatch = "subject_mismatch"
	ReasonInvalidSession  = "invalid_session"
	ReasonInvalidIDToken  = "invalid_id_token"
	ReasonLedgerError     = "ledger_error"
)

// Message is the normalized check result relayed from the hidden context to
// its parent. Serialized form:
//
//	{"message": "sessionCheckFailed", "reason": "...", "checkId": "..."}
//	{"message": "sessionCheckSucceeded", "claims": {...}, "checkId": "..."}
type Message struct {
	Kind    string         `json:"message"`
	Reason  string         `json:"reason,omitempty"`
	Claims  map[string]any `json:"claims,omitempty"`
	CheckID string         `json:"checkId,omitempty"`
}

// Failed builds a failure message bound to checkID.
func Failed(reason, checkID string) Message {
	return Message{Kind: KindFailed, Reason: reason, CheckID: checkID}
}

// Succeeded builds a success message bound to checkID. Claims may be nil for
// the response_type=none flow.
func Succeeded(claims map[string]any, checkID string) Message {
	return Message{Kind: KindSucceeded, Claims: claims, CheckID: checkID}
}

// Envelope pairs a Message with its transport metadata. Origins ride outside
// the JSON payload; receivers filter on them before looking at the message.
type Envelope struct {
	Message

	// Origin is the sender's origin (scheme://host[:port]).
	Origin string

	// TargetOrigin is the origin the sender addressed. Senders must address
	// the parent's own origin, never a wildcard.
	TargetOrigin string
}

// MessageFunc receives relayed envelopes.
type MessageFunc func(Envelope)

// OriginOf returns the serialized origin of u (scheme://host, keeping any
// explicit port). Opaque and relative URLs have no origin and yield "".
func OriginOf(u *url.URL) string {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
