package notify

import (
	"time"

	"github.com/halvar/credkeeper/policy"
	"github.com/rs/zerolog/log"
)

// Kind distinguishes the two event families: periodic status reports and
// refresh attempt outcomes.
type Kind string

const (
	KindStatus Kind = "status"
	KindResult Kind = "result"
)

// Severity escalates with how urgently a human should look at the event.
type Severity string

const (
	Info   Severity = "info"
	Notice Severity = "notice"
	Alert  Severity = "alert"
)

// Event is the structured notification contract. Delivery mechanics live in
// the sinks; everything upstream only produces Events.
type Event struct {
	Service   string    `json:"service"`
	Account   string    `json:"account,omitempty"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers one event to one sink.
type Notifier interface {
	Notify(event Event) error
}

// SeverityForStatus maps an expiration status to an event severity.
// Unknown is informational: a target that was never refreshed is expected
// state on first run, not an emergency.
func SeverityForStatus(s policy.Status) Severity {
	switch s {
	case policy.Warning:
		return Notice
	case policy.Critical, policy.Expired:
		return Alert
	default:
		return Info
	}
}

// SeverityForResult maps a refresh outcome to an event severity. Any failed
// refresh is an alert; for services with manual login steps a human has to
// act on it.
func SeverityForResult(success bool) Severity {
	if success {
		return Info
	}
	return Alert
}

// Dispatcher fans an event out to every configured sink. A sink failure is
// logged and the remaining sinks still receive the event; notification
// delivery must never abort a sweep.
type Dispatcher struct {
	sinks []Notifier
}

func NewDispatcher(sinks ...Notifier) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

func (d *Dispatcher) Notify(event Event) error {
	for _, sink := range d.sinks {
		if err := sink.Notify(event); err != nil {
			log.Warn().Err(err).Str("service", event.Service).Msg("Notification sink failed, continuing")
		}
	}
	return nil
}
