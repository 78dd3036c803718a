package tenant

import "sync"

// Selection is the active-location state of a session: the selected
// location id and the organization it belongs to. Only the Manager writes
// it; everyone else reads it or watches it.
type Selection struct {
	mu             sync.Mutex
	locationID     string
	organizationID string
	nextWatcher    int
	watchers       map[int]chan string
}

func newSelection() *Selection {
	return &Selection{watchers: make(map[int]chan string)}
}

// Current returns the selected location and organization ids. ok is false
// until a location has been selected.
func (s *Selection) Current() (locationID, organizationID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locationID, s.organizationID, s.locationID != ""
}

// LocationID returns the selected location id, or "" when unset.
func (s *Selection) LocationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locationID
}

// Watch returns a channel that always holds the latest location id ("" when
// unset). Intermediate values are coalesced: a slow reader sees the most
// recent selection, never a backlog. The returned func stops the watch.
func (s *Selection) Watch() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	ch := make(chan string, 1)
	ch <- s.locationID
	s.watchers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Selection) set(locationID, organizationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locationID == locationID && s.organizationID == organizationID {
		return
	}
	s.locationID = locationID
	s.organizationID = organizationID
	for _, ch := range s.watchers {
		publishLatest(ch, locationID)
	}
}

func (s *Selection) clear() {
	s.set("", "")
}

func publishLatest(ch chan string, value string) {
	select {
	case <-ch:
	default:
	}
	ch <- value
}
