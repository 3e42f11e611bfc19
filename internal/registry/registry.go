// Package registry tracks the task names the external execution system is
// known to handle, backing the admin available-tasks listing.
package registry

import "sort"

// TaskInfo describes one dispatchable task.
type TaskInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Registry is a static catalog populated at startup. Reads after startup
// are lock-free because the catalog never changes once the process is
// serving.
type Registry struct {
	tasks map[string]TaskInfo
}

func New() *Registry {
	return &Registry{tasks: map[string]TaskInfo{}}
}

// Register adds a task under its fully-qualified path, e.g.
// "tasks.cleanup_expired_tokens".
func (r *Registry) Register(path, description string) {
	name := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			name = path[i+1:]
			break
		}
	}
	r.tasks[path] = TaskInfo{Name: name, Path: path, Description: description}
}

// Known reports whether path is a registered task.
func (r *Registry) Known(path string) bool {
	_, ok := r.tasks[path]
	return ok
}

// List returns all registered tasks sorted by path.
func (r *Registry) List() []TaskInfo {
	out := make([]TaskInfo, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
