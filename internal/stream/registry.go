package stream

import "sync"

// Snapshot is the registry content read after the capture window closes
type Snapshot struct {
	VideoURL string
	AudioURL string
}

// Complete reports whether both streams were found
func (s Snapshot) Complete() bool {
	return s.VideoURL != "" && s.AudioURL != ""
}

// Registry keeps the first candidate of each kind for one extraction
type Registry struct {
	mu    sync.Mutex
	video string
	audio string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Record stores the candidate unless one of the same kind was already stored.
// It returns true when the candidate was kept.
func (r *Registry) Record(c Candidate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch c.Kind {
	case Video:
		if r.video != "" {
			return false
		}
		r.video = c.BaseURL
	case Audio:
		if r.audio != "" {
			return false
		}
		r.audio = c.BaseURL
	default:
		return false
	}
	return true
}

// Observe classifies a raw request URL and records it if relevant
func (r *Registry) Observe(rawURL string) (Candidate, bool) {
	c, ok := Classify(rawURL)
	if !ok {
		return Candidate{}, false
	}
	return c, r.Record(c)
}

// Snapshot returns the currently retained URLs
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{VideoURL: r.video, AudioURL: r.audio}
}
