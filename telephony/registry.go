package telephony

import "sync"

// Registry maps provider call sids to live bridges. Each entry is written
// only by the webhook requests of its own call.
type Registry struct {
	bridges map[string]*Bridge
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		bridges: make(map[string]*Bridge),
	}
}

// Add registers b under callSid and reports false if one already exists.
func (r *Registry) Add(callSid string, b *Bridge) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bridges[callSid]; ok {
		return false
	}
	r.bridges[callSid] = b
	return true
}

func (r *Registry) Remove(callSid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bridges, callSid)
}

func (r *Registry) Get(callSid string) (*Bridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bridges[callSid]
	return b, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bridges)
}
