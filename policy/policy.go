package policy

import (
	"fmt"
	"time"
)

// Status is the derived freshness classification of a stored session.
// It is always recomputed from the stored timestamp and never persisted.
type Status int

const (
	// Unknown means no auth state (or no timestamp) exists for the target.
	Unknown Status = iota
	// Valid means the session has comfortable time left.
	Valid
	// Warning means the session is inside the configured warning window.
	Warning
	// Critical means the session is inside the configured critical window.
	Critical
	// Expired means the configured expiration window has fully elapsed.
	Expired
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "UNKNOWN"
	case Valid:
		return "VALID"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	case Expired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Evaluation is the result of an expiration check.
type Evaluation struct {
	Status Status
	// DaysRemaining is the time left before the configured window elapses,
	// in fractional days. Negative when expired, zero when unknown.
	DaysRemaining float64
	// Reason is a human-readable explanation for the status decision.
	Reason string
}

const hoursPerDay = 24

// Evaluate computes the expiration status of a session from its last refresh
// timestamp and the service's configured windows. Thresholds are per-service
// configuration, not constants: one service's session may legitimately expire
// in 7 days and another's in 90. Pure function, no I/O.
func Evaluate(lastRefreshedAt *time.Time, expirationDays, warningDays, criticalDays int, now time.Time) Evaluation {
	if lastRefreshedAt == nil || lastRefreshedAt.IsZero() {
		return Evaluation{
			Status: Unknown,
			Reason: "no existing state",
		}
	}

	age := now.Sub(*lastRefreshedAt)
	remaining := time.Duration(expirationDays)*hoursPerDay*time.Hour - age
	remainingDays := remaining.Hours() / hoursPerDay

	switch {
	case remaining <= 0:
		return Evaluation{
			Status:        Expired,
			DaysRemaining: remainingDays,
			Reason:        fmt.Sprintf("expired %.1f days ago", -remainingDays),
		}
	case remainingDays <= float64(criticalDays):
		return Evaluation{
			Status:        Critical,
			DaysRemaining: remainingDays,
			Reason:        fmt.Sprintf("%.1f days until expiration", remainingDays),
		}
	case remainingDays <= float64(warningDays):
		return Evaluation{
			Status:        Warning,
			DaysRemaining: remainingDays,
			Reason:        fmt.Sprintf("%.1f days until expiration", remainingDays),
		}
	default:
		return Evaluation{
			Status:        Valid,
			DaysRemaining: remainingDays,
			Reason:        fmt.Sprintf("%.1f days until expiration", remainingDays),
		}
	}
}

// NeedsRefresh reports whether a session with the given status should be
// re-authenticated. Anything short of Valid needs a refresh.
func NeedsRefresh(s Status) bool {
	return s != Valid
}
