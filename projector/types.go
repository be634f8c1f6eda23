// Package projector contains the three event projectors that fold upstream
// operational records into the knowledge graph. Projectors are stateless and
// receive at-least-once delivery, so every write is an idempotent
// merge-on-identity upsert. Failures never escape a projector: the outcome
// is reported as an explicit Result that the ingest boundary logs and meters.
package projector

import (
	"encoding/json"

	"github.com/c360/opsgraph/errors"
)

// Outcome classifies a projection attempt.
type Outcome int

const (
	// OutcomeOK means all statements were committed.
	OutcomeOK Outcome = iota
	// OutcomeSkipped means the record was missing a required discriminator
	// or was malformed; it is dropped deliberately, not an error.
	OutcomeSkipped
	// OutcomeFailed means the store rejected the write; the failure is
	// logged and metered but never propagated upstream, because trigger
	// level failures would cause unbounded redelivery storms.
	OutcomeFailed
)

// String returns the metric label for an outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of projecting one record.
type Result struct {
	Outcome Outcome
	Reason  string
}

// OK reports a successful projection
func OK() Result { return Result{Outcome: OutcomeOK} }

// Skipped reports a deliberately dropped record
func Skipped(reason string) Result { return Result{Outcome: OutcomeSkipped, Reason: reason} }

// Failed reports a store-level failure
func Failed(reason string) Result { return Result{Outcome: OutcomeFailed, Reason: reason} }

// ActionRecord is a tuning action or general operator action. TeamID and ID
// are required; ReportID and EventID attach optional edges. Meta carries the
// full serialized record verbatim.
type ActionRecord struct {
	ID         string `json:"id"`
	TeamID     string `json:"teamId"`
	ActionType string `json:"actionType"`
	ReportID   string `json:"reportId,omitempty"`
	EventID    string `json:"eventId,omitempty"`

	Meta string `json:"-"`
}

// AlertRecord is an alert emitted by a report-quality pipeline.
type AlertRecord struct {
	ID       string `json:"id"`
	TeamID   string `json:"teamId"`
	Type     string `json:"type,omitempty"`
	ReportID string `json:"reportId,omitempty"`
	PolicyID string `json:"policyId,omitempty"`
	ActionID string `json:"actionId,omitempty"`

	Meta string `json:"-"`
}

// DeployMessage is a model rollout notification. ID is generated when absent.
type DeployMessage struct {
	ID              string `json:"id,omitempty"`
	TeamID          string `json:"teamId"`
	Team            string `json:"team,omitempty"` // legacy field name
	Ver             string `json:"ver,omitempty"`
	SHA             string `json:"sha,omitempty"`
	Ts              string `json:"ts,omitempty"`
	PreviousVersion string `json:"previousVersion,omitempty"`
}

// DecodeActionRecord unmarshals a raw action record, preserving the full
// payload as opaque meta.
func DecodeActionRecord(data []byte) (ActionRecord, error) {
	var rec ActionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, errors.WrapInvalid(errors.ErrMalformedInput, "ActionRecord", "Decode", err.Error())
	}
	rec.Meta = string(data)
	return rec, nil
}

// DecodeAlertRecord unmarshals a raw alert record, preserving the full
// payload as opaque meta.
func DecodeAlertRecord(data []byte) (AlertRecord, error) {
	var rec AlertRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, errors.WrapInvalid(errors.ErrMalformedInput, "AlertRecord", "Decode", err.Error())
	}
	rec.Meta = string(data)
	return rec, nil
}

// DecodeDeployMessage unmarshals a raw deployment message.
func DecodeDeployMessage(data []byte) (DeployMessage, error) {
	var msg DeployMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, errors.WrapInvalid(errors.ErrMalformedInput, "DeployMessage", "Decode", err.Error())
	}
	return msg, nil
}
