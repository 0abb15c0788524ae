package session

import (
	"sync"
	"time"
)

// EventKind names a lifecycle notification.
type EventKind string

const (
	EventEstablished       EventKind = "established"
	EventReused            EventKind = "reused"
	EventInvalidated       EventKind = "invalidated"
	EventReleased          EventKind = "released"
	EventHealthCheckFailed EventKind = "health-check failed"
	EventLoginFailed       EventKind = "login failed"
)

// Event is a discrete lifecycle notification.
type Event struct {
	Kind     EventKind `json:"kind"`
	WorkerID string    `json:"worker_id"`
	At       time.Time `json:"at"`
	Detail   string    `json:"detail,omitempty"`
}

// Notifier receives lifecycle events. Implementations must be safe for
// concurrent use since every worker's Manager reports to the same notifier.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify calls f(e).
func (f NotifierFunc) Notify(e Event) { f(e) }

// Notifiers fans an event out to several notifiers in order.
type Notifiers []Notifier

// Notify forwards e to every non-nil notifier.
func (ns Notifiers) Notify(e Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(e)
		}
	}
}

type discard struct{}

func (discard) Notify(Event) {}

// Logf is the subset of a leveled logger LogNotifier needs.
type Logf interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

// LogNotifier writes lifecycle events to a logger. Failures are logged at
// warn level, everything else at info.
func LogNotifier(l Logf) Notifier {
	var mu sync.Mutex
	return NotifierFunc(func(e Event) {
		mu.Lock()
		defer mu.Unlock()

		switch e.Kind {
		case EventHealthCheckFailed, EventLoginFailed:
			l.Warnf("session %s worker=%s %s", e.Kind, e.WorkerID, e.Detail)
		default:
			l.Infof("session %s worker=%s %s", e.Kind, e.WorkerID, e.Detail)
		}
	})
}
