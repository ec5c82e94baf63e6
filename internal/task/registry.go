package task

import "fmt"

// Registry holds the worker's registered tasks, in registration order.
type Registry struct {
	order []string
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds a task. Registering the same name twice is a programming
// error and fails loudly.
func (r *Registry) Register(t *Task) error {
	name := t.Name()
	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("task %q already registered", name)
	}
	r.order = append(r.order, name)
	r.tasks[name] = t
	return nil
}

// Get looks a task up by routing name.
func (r *Registry) Get(name string) (*Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// All returns the registered tasks in registration order.
func (r *Registry) All() []*Task {
	out := make([]*Task, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tasks[name])
	}
	return out
}
