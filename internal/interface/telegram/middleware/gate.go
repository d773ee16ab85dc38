// Package middleware contains the checks every update passes before its
// handler runs: the time gate, admin authorization, rate limiting and
// panic recovery.
package middleware

import (
	"fmt"
	"time"

	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIME GATE
// Module logging is accepted only inside the daily window. Reads are always
// allowed.
// ══════════════════════════════════════════════════════════════════════════════

// Category splits actions by whether the time gate applies.
type Category int

const (
	AlwaysAllowed Category = iota
	TimeRestricted
)

func (c Category) String() string {
	if c == TimeRestricted {
		return "time_restricted"
	}
	return "always_allowed"
}

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool

	// Now is the local time the decision was made at.
	Now time.Time
}

// NowText returns the check time as HH:MM.
func (d Decision) NowText() string {
	return d.Now.Format(timeutil.FormatTime)
}

// TimeGate allows restricted actions when StartHour <= hour <= EndHour.
// Both ends are inclusive and minutes are ignored.
type TimeGate struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// NewTimeGate validates the window.
func NewTimeGate(startHour, endHour int, loc *time.Location) (*TimeGate, error) {
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23 {
		return nil, fmt.Errorf("gate hours must be within 0..23, got %d..%d", startHour, endHour)
	}
	if startHour > endHour {
		return nil, fmt.Errorf("gate start hour %d is after end hour %d", startHour, endHour)
	}
	if loc == nil {
		loc = time.Local
	}
	return &TimeGate{StartHour: startHour, EndHour: endHour, Location: loc}, nil
}

// Check decides whether an action of category c may run at now.
func (g *TimeGate) Check(c Category, now time.Time) Decision {
	local := now.In(g.Location)
	if c != TimeRestricted {
		return Decision{Allowed: true, Now: local}
	}
	h := local.Hour()
	return Decision{Allowed: h >= g.StartHour && h <= g.EndHour, Now: local}
}
