package installer

import (
	"fmt"
	"strings"
)

// ConfirmationStrategy decides how the user consent prompt is surfaced.
type ConfirmationStrategy int

const (
	// Deferred posts a high priority notification whose tap opens the prompt.
	Deferred ConfirmationStrategy = iota
	// Immediate opens the prompt right away.
	Immediate
)

func (s ConfirmationStrategy) String() string {
	if s == Immediate {
		return "immediate"
	}
	return "deferred"
}

// ParseConfirmationStrategy accepts "immediate" or "deferred".
func ParseConfirmationStrategy(s string) (ConfirmationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate":
		return Immediate, nil
	case "", "deferred":
		return Deferred, nil
	default:
		return Deferred, fmt.Errorf("unknown confirmation strategy %q", s)
	}
}

// NotificationData customizes the notification posted for the Deferred strategy.
// Empty fields fall back to localized defaults.
type NotificationData struct {
	Icon  []byte
	Title string
	Text  string
}

// SessionOptions configures a single install or uninstall call.
type SessionOptions struct {
	confirmation ConfirmationStrategy
	notification NotificationData
}

// SessionOption mutates SessionOptions while they are being built.
type SessionOption func(*SessionOptions)

// WithConfirmation selects the confirmation strategy.
func WithConfirmation(s ConfirmationStrategy) SessionOption {
	return func(o *SessionOptions) { o.confirmation = s }
}

// WithNotification sets the notification used by the Deferred strategy.
func WithNotification(n NotificationData) SessionOption {
	return func(o *SessionOptions) {
		o.notification = NotificationData{
			Icon:  append([]byte(nil), n.Icon...),
			Title: n.Title,
			Text:  n.Text,
		}
	}
}

// NewSessionOptions builds options; the zero value uses the Deferred strategy.
func NewSessionOptions(opts ...SessionOption) SessionOptions {
	var o SessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Confirmation returns the configured strategy.
func (o SessionOptions) Confirmation() ConfirmationStrategy { return o.confirmation }

// Notification returns a copy of the notification data.
func (o SessionOptions) Notification() NotificationData {
	n := o.notification
	n.Icon = append([]byte(nil), n.Icon...)
	return n
}
