package compliance

import (
	"fmt"
	"time"
)

// Purpose distinguishes transactional vs marketing messages.
type Purpose string

const (
	// PurposeTransactional covers messages about an existing booking.
	PurposeTransactional Purpose = "transactional"
	// PurposeMarketing covers review requests and win-back messages.
	PurposeMarketing Purpose = "marketing"
)

// SendWindow is a daily local-time window for marketing sends.
type SendWindow struct {
	StartMinutes int
	EndMinutes   int
}

// ParseSendWindow builds a window from HH:MM strings.
func ParseSendWindow(start, end string) (SendWindow, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return SendWindow{}, fmt.Errorf("compliance: parse send window start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return SendWindow{}, fmt.Errorf("compliance: parse send window end: %w", err)
	}
	return SendWindow{StartMinutes: startMin, EndMinutes: endMin}, nil
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Allows reports whether a message of purpose may go out at local, which
// must already be in the recipient business's wall clock. Transactional
// messages are always allowed. An empty window (start == end) allows all.
func (w SendWindow) Allows(local time.Time, purpose Purpose) bool {
	if purpose != PurposeMarketing || w.StartMinutes == w.EndMinutes {
		return true
	}
	minutes := local.Hour()*60 + local.Minute()
	if w.StartMinutes < w.EndMinutes {
		return minutes >= w.StartMinutes && minutes < w.EndMinutes
	}
	// Window crosses midnight.
	return minutes >= w.StartMinutes || minutes < w.EndMinutes
}
