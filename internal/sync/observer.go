package sync

import (
	"log/slog"
)

// ProgressObserver receives progress notifications from a sync run.
type ProgressObserver interface {
	// OnProgressUpdate is called at the start of each stage
	OnProgressUpdate(title, description string)

	// OnProgressFinished is called exactly once when the run ends
	OnProgressFinished(description string, success bool)
}

// ObserverFuncs adapts plain functions to ProgressObserver. Nil fields are skipped.
type ObserverFuncs struct {
	Update   func(title, description string)
	Finished func(description string, success bool)
}

// OnProgressUpdate implements ProgressObserver
func (f ObserverFuncs) OnProgressUpdate(title, description string) {
	if f.Update != nil {
		f.Update(title, description)
	}
}

// OnProgressFinished implements ProgressObserver
func (f ObserverFuncs) OnProgressFinished(description string, success bool) {
	if f.Finished != nil {
		f.Finished(description, success)
	}
}

// Event is a single progress notification.
type Event struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Finished    bool   `json:"finished"`
	Success     bool   `json:"success"`
}

// ChannelObserver forwards notifications as Events. The channel is closed
// after the finish event, so ranging over Events() terminates with the run.
type ChannelObserver struct {
	events chan Event
}

// NewChannelObserver creates a ChannelObserver. The buffer must be large
// enough for the consumer's lag; sends block once it is full.
func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{events: make(chan Event, buffer)}
}

// Events returns the receive side of the event stream
func (c *ChannelObserver) Events() <-chan Event {
	return c.events
}

// OnProgressUpdate implements ProgressObserver
func (c *ChannelObserver) OnProgressUpdate(title, description string) {
	c.events <- Event{Title: title, Description: description}
}

// OnProgressFinished implements ProgressObserver
func (c *ChannelObserver) OnProgressFinished(description string, success bool) {
	c.events <- Event{Description: description, Finished: true, Success: success}
	close(c.events)
}

// LogObserver writes notifications to a slog logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// OnProgressUpdate implements ProgressObserver
func (l LogObserver) OnProgressUpdate(title, description string) {
	l.logger().Info(title, "detail", description)
}

// OnProgressFinished implements ProgressObserver
func (l LogObserver) OnProgressFinished(description string, success bool) {
	if success {
		l.logger().Info("Sync finished", "detail", description)
		return
	}
	l.logger().Error("Sync failed", "detail", description)
}

// MultiObserver fans notifications out to every observer in order.
type MultiObserver []ProgressObserver

// OnProgressUpdate implements ProgressObserver
func (m MultiObserver) OnProgressUpdate(title, description string) {
	for _, o := range m {
		if o != nil {
			o.OnProgressUpdate(title, description)
		}
	}
}

// OnProgressFinished implements ProgressObserver
func (m MultiObserver) OnProgressFinished(description string, success bool) {
	for _, o := range m {
		if o != nil {
			o.OnProgressFinished(description, success)
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnProgressUpdate(string, string) {}
func (nopObserver) OnProgressFinished(string, bool) {}
