package storage

import (
	"context"
	"time"

	"tasktrack/internal/task"
)

// Config configures storage.
//
// Driver values: "csv", "json", "yaml", "sqlite". An empty Driver is inferred
// from the Path extension. "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store saves and restores a whole task collection. Load on a store that has
// never been saved returns no tasks and no error.
type Store interface {
	Save(ctx context.Context, tasks []task.Task) error
	Load(ctx context.Context) ([]task.Task, error)
	Close() error
}

// Record is the serialized shape of a task. Field order matters for CSV.
type Record struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Deadline    string `json:"deadline" yaml:"deadline"`
	Completed   bool   `json:"completed" yaml:"completed"`
}

func recordOf(t task.Task) Record {
	return Record{
		Name:        t.Name(),
		Description: t.Description(),
		Deadline:    t.DeadlineString(),
		Completed:   t.Completed(),
	}
}

func (r Record) task() (task.Task, error) {
	t, err := task.New(r.Name, r.Description, r.Deadline)
	if err != nil {
		return task.Task{}, err
	}
	t.SetCompleted(r.Completed)
	return t, nil
}

func records(tasks []task.Task) []Record {
	out := make([]Record, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, recordOf(t))
	}
	return out
}
