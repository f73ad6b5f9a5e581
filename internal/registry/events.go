package registry

import (
	"tasktrack/internal/eventbus"
	"tasktrack/internal/task"
)

// Event types published on the bus (see WithBus).
const (
	EventPrefix    = "task."
	EventAdded     = "task.added"
	EventRemoved   = "task.removed"
	EventCompleted = "task.completed"
	EventUpdated   = "task.updated"
	EventSorted    = "task.sorted"
	EventCleared   = "task.cleared"
	EventLoaded    = "task.loaded"
)

func (r *Registry) publish(typ string, k task.Key) {
	r.publishData(typ, k)
}

func (r *Registry) publishData(typ string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: r.now(), Data: data})
}
