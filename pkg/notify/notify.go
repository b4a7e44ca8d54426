package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mediakeeper/pkg/logger"
)

// Message is the completion report of one pipeline run
type Message struct {
	RunID   string
	Kind    string
	Title   string
	Body    string
	Added   int
	Removed int
	Sample  []string
}

// Text renders the message as plain text for channels without formatting
func (m Message) Text() string {
	var b strings.Builder
	if m.Title != "" {
		b.WriteString(m.Title)
		b.WriteString("\n")
	}
	b.WriteString(m.Body)
	return strings.TrimRight(b.String(), "\n")
}

// Channel is one notification destination
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans a message out to every configured channel. A failing
// channel is logged and does not stop the others.
type Dispatcher struct {
	channels []Channel
	logger   logger.Logger
}

// NewDispatcher creates a dispatcher over channels
func NewDispatcher(log logger.Logger, channels ...Channel) *Dispatcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Dispatcher{channels: channels, logger: log}
}

// Add registers another channel
func (d *Dispatcher) Add(ch Channel) {
	d.channels = append(d.channels, ch)
}

// Channels returns the names of the registered channels in order
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Send delivers msg to every channel and returns the joined failures
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	var failures []error
	for _, ch := range d.channels {
		if err := ch.Send(ctx, msg); err != nil {
			d.logger.WarnWithFields("Notification channel failed", map[string]interface{}{
				"channel": ch.Name(),
				"kind":    msg.Kind,
				"error":   err.Error(),
			})
			failures = append(failures, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		d.logger.DebugWithFields("Notification sent", map[string]interface{}{
			"channel": ch.Name(),
			"kind":    msg.Kind,
		})
	}
	return errors.Join(failures...)
}
