package chat

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry is the set of Active sessions, keyed by id.
//
// mu only guards the map and the id counter and is never held during I/O.
// Session contents are guarded by each Session's own lock; a write to a
// socket holds only that destination's lock, for at most WriteTimeout, so a
// slow destination cannot block joins or leaves of unrelated sessions.
// Lock order is always registry then session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   uint64
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[uint64]*Session),
		logger:   logger,
	}
}

// Register assigns the session the next id, marks it Active and inserts it.
// Ids count up from 0 and are never handed out twice by the same Registry,
// so a departure broadcast addressed by a removed id can't exclude a newcomer.
func (r *Registry) Register(s *Session) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	if err := s.activate(id); err != nil {
		return 0, err
	}
	r.nextID++
	r.sessions[id] = s
	ConnectedClients.Set(float64(len(r.sessions)))

	r.logger.Info("session registered", "id", id, "name", s.Name(), "addr", s.PeerAddr())
	return id, nil
}

// Remove drops the session with the given id. Removing an id that is not
// present is a no-op; the result reports whether anything was removed.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	ConnectedClients.Set(float64(len(r.sessions)))

	r.logger.Info("session removed", "id", id)
	return true
}

func (r *Registry) Get(id uint64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Names returns the display names of all registered sessions, sorted.
func (r *Registry) Names() []string {
	snap := r.snapshot()
	names := make([]string, 0, len(snap))
	for _, e := range snap {
		names = append(names, e.session.Name())
	}
	sort.Strings(names)
	return names
}

// ForEachExcept calls fn for every Active session whose id is not origin, in
// ascending id order. It walks a snapshot taken under the read lock and calls
// fn with no registry lock held: a session removed or closed after the
// snapshot is skipped, one registered after it is not visited.
func (r *Registry) ForEachExcept(origin uint64, fn func(s *Session)) {
	for _, e := range r.snapshot() {
		if e.id == origin || !r.holds(e.id, e.session) || e.session.State() != StateActive {
			continue
		}
		fn(e.session)
	}
}

// CloseAll closes every registered session. Their workers notice on the next
// read and remove themselves.
func (r *Registry) CloseAll() {
	for _, e := range r.snapshot() {
		_ = e.session.Close()
	}
}

type entry struct {
	id      uint64
	session *Session
}

func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	out := make([]entry, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, entry{id: id, session: s})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *Registry) holds(id uint64, s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id] == s
}
