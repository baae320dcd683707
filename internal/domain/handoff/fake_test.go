package handoff

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/GriffinCanCode/clouddesk/internal/domain/supervisor"
)

// fakeSpawner records spawns and lets tests end processes on demand
type fakeSpawner struct {
	mu         sync.Mutex
	available  map[string]bool
	broken     map[string]bool
	spawned    []*supervisor.ProcessHandle
	watchers   map[*supervisor.ProcessHandle]func(int)
	terminated []*supervisor.ProcessHandle
	killedAll  int
}

func newFakeSpawner(available ...string) *fakeSpawner {
	f := &fakeSpawner{
		available: make(map[string]bool),
		broken:    make(map[string]bool),
		watchers:  make(map[*supervisor.ProcessHandle]func(int)),
	}
	for _, name := range available {
		f.available[name] = true
	}
	return f
}

func (f *fakeSpawner) Resolve(name string) (string, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "/opt/clouddesk/" + name
	if !f.available[name] {
		return "", []string{path}, os.ErrNotExist
	}
	return path, []string{path}, nil
}

func (f *fakeSpawner) Spawn(name string, args ...string) (*supervisor.ProcessHandle, error) {
	path, tried, err := f.Resolve(name)
	if err != nil {
		return nil, &supervisor.SpawnError{Command: name, Candidates: tried, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken[name] {
		return nil, &supervisor.SpawnError{Command: name, Candidates: []string{path}, Err: fmt.Errorf("permission denied")}
	}
	h := &supervisor.ProcessHandle{
		Name:      name,
		PID:       1000 + len(f.spawned),
		Command:   path,
		Args:      args,
		StartedAt: time.Now(),
	}
	f.spawned = append(f.spawned, h)
	return h, nil
}

func (f *fakeSpawner) Watch(h *supervisor.ProcessHandle, onExited func(int)) func() {
	f.mu.Lock()
	f.watchers[h] = onExited
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.watchers, h)
		f.mu.Unlock()
	}
}

func (f *fakeSpawner) Terminate(h *supervisor.ProcessHandle, _ time.Duration) error {
	f.mu.Lock()
	f.terminated = append(f.terminated, h)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpawner) TerminateAll(time.Duration) {
	f.mu.Lock()
	f.killedAll++
	f.mu.Unlock()
}

// exit simulates h ending with code; watchers that were cancelled are not
// called
func (f *fakeSpawner) exit(h *supervisor.ProcessHandle, code int) {
	f.mu.Lock()
	fn, ok := f.watchers[h]
	delete(f.watchers, h)
	f.mu.Unlock()
	if ok {
		fn(code)
	}
}

func (f *fakeSpawner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.spawned {
		if h.Name == name {
			n++
		}
	}
	return n
}

func (f *fakeSpawner) last(name string) *supervisor.ProcessHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.spawned) - 1; i >= 0; i-- {
		if f.spawned[i].Name == name {
			return f.spawned[i]
		}
	}
	return nil
}

func (f *fakeSpawner) wasTerminated(h *supervisor.ProcessHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.terminated {
		if t == h {
			return true
		}
	}
	return false
}

func (f *fakeSpawner) watching(h *supervisor.ProcessHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.watchers[h]
	return ok
}
