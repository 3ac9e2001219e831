package supervisor

import (
	"time"

	"github.com/tessro/rig/internal/broadcast"
	"github.com/tessro/rig/internal/daemon"
)

// LifecycleKind identifies a process lifecycle transition.
type LifecycleKind string

const (
	LifecycleStarted LifecycleKind = daemon.EventStarted
	LifecycleStopped LifecycleKind = daemon.EventStopped
	LifecycleExited  LifecycleKind = daemon.EventExited
)

func (k LifecycleKind) messageKind() broadcast.Kind {
	switch k {
	case LifecycleStarted:
		return broadcast.KindStarted
	case LifecycleStopped:
		return broadcast.KindStopped
	default:
		return broadcast.KindExited
	}
}

// Lifecycle is emitted when a project's process starts, is stopped, or exits.
type Lifecycle struct {
	Kind     LifecycleKind
	Project  string
	PID      int
	ExitCode *int   // Exited only; -1 when killed by a signal
	Signal   string // Exited only
	Time     time.Time
	// Removed reports whether the exit cleared the registry entry. False
	// when the process had already been stopped.
	Removed bool
}

// publishLifecycle queues a lifecycle event for every subscriber. Attached
// clients receive it from their own pump, so a client that stops reading
// never holds up the caller.
func (s *Supervisor) publishLifecycle(ev Lifecycle) {
	s.broadcaster.Publish(broadcast.Message{
		Kind:     ev.Kind.messageKind(),
		Project:  ev.Project,
		PID:      ev.PID,
		ExitCode: ev.ExitCode,
		Time:     ev.Time,
	})
}
