package quoter

import "time"

// Phase classifies how close a market is to its scheduled close. Quote and
// requote intervals tighten as the event approaches.
type Phase int

const (
	PreMatchEarly    Phase = iota // more than 60 minutes out
	PreMatchLate                  // 10 to 60 minutes out
	PreMatchCritical              // under 10 minutes out
	InPlay                        // past the scheduled close
)

// String returns a short label for logging.
func (p Phase) String() string {
	switch p {
	case PreMatchLate:
		return "pre_match_late"
	case PreMatchCritical:
		return "pre_match_critical"
	case InPlay:
		return "in_play"
	default:
		return "pre_match_early"
	}
}

// PhaseFor classifies now against the market close time. A zero close time
// reads as early pre-match.
func PhaseFor(closeTime, now time.Time) Phase {
	if closeTime.IsZero() {
		return PreMatchEarly
	}
	remaining := closeTime.Sub(now)
	switch {
	case remaining <= 0:
		return InPlay
	case remaining < 10*time.Minute:
		return PreMatchCritical
	case remaining <= 60*time.Minute:
		return PreMatchLate
	default:
		return PreMatchEarly
	}
}

// TTL returns how long a quote may rest in this phase.
func (p Phase) TTL() time.Duration {
	switch p {
	case PreMatchLate:
		return 45 * time.Second
	case PreMatchCritical:
		return 20 * time.Second
	case InPlay:
		return 3 * time.Second
	default:
		return 90 * time.Second
	}
}

// RequoteInterval returns how often quotes are refreshed in this phase.
func (p Phase) RequoteInterval() time.Duration {
	switch p {
	case PreMatchLate:
		return 22 * time.Second
	case PreMatchCritical:
		return 7 * time.Second
	case InPlay:
		return 1 * time.Second
	default:
		return 45 * time.Second
	}
}
