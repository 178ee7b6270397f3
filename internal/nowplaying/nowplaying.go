// ABOUTME: Shared now-playing projection
// ABOUTME: Holds current track metadata and playback capability flags
package nowplaying

import "sync"

// State is the now-playing projection exposed to the application
type State struct {
	IsPlaying  bool
	Track      string
	Artist     string
	Album      string
	ArtworkURL string
	PlayerName string
	PlayerID   string
	Duration   int64 // seconds, 0 = unknown
	Elapsed    int64 // seconds

	CanPlay     bool
	CanPause    bool
	CanNext     bool
	CanPrevious bool
}

// Listener receives the projection after every update
type Listener func(State)

// Store holds the current projection behind a mutex.
// Updated from the session loop; read from anywhere.
type Store struct {
	mu       sync.RWMutex
	state    State
	listener Listener
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// OnChange registers a listener invoked on every update.
// The listener runs on the updating goroutine and must not block.
func (s *Store) OnChange(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

// Update replaces the projection
func (s *Store) Update(state State) {
	s.mu.Lock()
	s.state = state
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(state)
	}
}

// Clear resets the projection to an idle state:
// no track, no playback capabilities.
func (s *Store) Clear() {
	s.Update(State{})
}

// Get returns the current projection
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
