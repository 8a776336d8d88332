package room

import (
	"sync"

	"github.com/rainstream/mediasfu/mediasoup"
)

// Registry is the process-wide roomId -> Room map (spec.md §4.9 "Rooms
// are keyed by roomId in a process-wide map"). Both ClusterServer and
// MediaServer share this type.
type Registry struct {
	mu    sync.Mutex
	cfg   Config
	rooms map[string]*Room
}

// NewRegistry creates an empty registry using cfg for every Room it
// creates on demand.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, rooms: make(map[string]*Room)}
}

// GetOrCreate returns the existing Room for id, or creates one on worker
// if none exists yet (spec.md §4.9 "creating rooms on demand"). The
// returned Room removes itself from the registry when it closes.
func (reg *Registry) GetOrCreate(id string, worker *mediasoup.Worker) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[id]; ok && !r.Closed() {
		return r, nil
	}

	r, err := NewRoom(id, worker, reg.cfg, reg.remove)
	if err != nil {
		return nil, err
	}
	reg.rooms[id] = r
	return r, nil
}

func (reg *Registry) remove(id string) {
	reg.mu.Lock()
	delete(reg.rooms, id)
	reg.mu.Unlock()
}

// Count reports the number of live rooms; used by tests and diagnostics.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
