package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
)

type fakeStore struct {
	mu        sync.Mutex
	orgs      map[string]*model.Organization
	locations map[string][]model.Location

	orgCreates int
	locCreates int
	queries    int

	// gate, when non-nil, blocks creations until closed.
	gate       chan struct{}
	orgErrors  []error
	findErrors []error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:      make(map[string]*model.Organization),
		locations: make(map[string][]model.Location),
	}
}

func (s *fakeStore) FindOrganization(_ context.Context, ownerID string) (*model.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if len(s.findErrors) > 0 {
		err := s.findErrors[0]
		s.findErrors = s.findErrors[1:]
		return nil, err
	}
	return s.orgs[ownerID], nil
}

func (s *fakeStore) CreateOrganization(_ context.Context, ownerID, name string) (*model.Organization, error) {
	s.mu.Lock()
	s.orgCreates++
	gate := s.gate
	var err error
	if len(s.orgErrors) > 0 {
		err = s.orgErrors[0]
		s.orgErrors = s.orgErrors[1:]
	}
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	org := &model.Organization{ID: fmt.Sprintf("org-%d", s.orgCreates), Name: name, OwnerID: ownerID}
	s.orgs[ownerID] = org
	return org, nil
}

func (s *fakeStore) ListLocations(_ context.Context, organizationID string) ([]model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	return append([]model.Location(nil), s.locations[organizationID]...), nil
}

func (s *fakeStore) CreateLocation(_ context.Context, organizationID, name string) (*model.Location, error) {
	s.mu.Lock()
	s.locCreates++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := model.Location{ID: fmt.Sprintf("loc-%d", s.locCreates), Name: name, OrganizationID: organizationID}
	s.locations[organizationID] = append(s.locations[organizationID], loc)
	return &loc, nil
}

func (s *fakeStore) counts() (orgs, locs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orgCreates, s.locCreates
}

func TestEvaluateWithoutSessionDoesNothing(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, StaticSession(""))
	for i := 0; i < 3; i++ {
		if err := m.Evaluate(context.Background()); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}
	m.Wait()
	if store.queries != 0 {
		t.Fatalf("expected no backend calls, got %d queries", store.queries)
	}
	if _, _, ok := m.Selection().Current(); ok {
		t.Fatal("selection should stay unset")
	}
}

func TestOrganizationCreatedOnceWhileInFlight(t *testing.T) {
	store := newFakeStore()
	store.gate = make(chan struct{})
	m := NewManager(store, StaticSession("user-1"))
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if err := m.Evaluate(ctx); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}
	if orgState, _ := m.RequestStates(); orgState != RequestInFlight {
		t.Fatalf("organization request = %v, want in_flight", orgState)
	}
	close(store.gate)
	m.Wait()

	orgs, _ := store.counts()
	if orgs != 1 {
		t.Fatalf("organization creates = %d, want 1", orgs)
	}
	if orgState, _ := m.RequestStates(); orgState != RequestSettled {
		t.Fatalf("organization request = %v, want settled", orgState)
	}
	if org := m.Organization(); org == nil || org.Name != "Minha Empresa" {
		t.Fatalf("organization = %+v", org)
	}
}

func TestConcurrentEvaluationsCreateOneOfEach(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, StaticSession("user-1"))
	ctx := context.Background()

	for round := 0; round < 4; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = m.Evaluate(ctx)
			}()
		}
		wg.Wait()
		m.Wait()
	}

	orgs, locs := store.counts()
	if orgs != 1 || locs != 1 {
		t.Fatalf("creates = (%d orgs, %d locations), want (1, 1)", orgs, locs)
	}
	loc, org, ok := m.Selection().Current()
	if !ok || loc != "loc-1" || org != "org-1" {
		t.Fatalf("selection = (%q, %q, %v)", loc, org, ok)
	}
}

func TestDefaultLocationCreatedOnceWhileInFlight(t *testing.T) {
	store := newFakeStore()
	store.orgs["user-1"] = &model.Organization{ID: "org-a", OwnerID: "user-1"}
	store.gate = make(chan struct{})
	m := NewManager(store, StaticSession("user-1"), WithDefaultNames("", "Matriz"))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := m.Evaluate(ctx); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}
	close(store.gate)
	m.Wait()
	if err := m.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	orgs, locs := store.counts()
	if orgs != 0 || locs != 1 {
		t.Fatalf("creates = (%d orgs, %d locations), want (0, 1)", orgs, locs)
	}
	if got := store.locations["org-a"][0].Name; got != "Matriz" {
		t.Fatalf("location name = %q", got)
	}
	if got := m.Selection().LocationID(); got != "loc-1" {
		t.Fatalf("active location = %q, want loc-1", got)
	}
}

func TestExistingLocationsSelectFirstWithoutCreating(t *testing.T) {
	store := newFakeStore()
	store.orgs["user-1"] = &model.Organization{ID: "org-a", OwnerID: "user-1"}
	store.locations["org-a"] = []model.Location{
		{ID: "first", OrganizationID: "org-a"},
		{ID: "second", OrganizationID: "org-a"},
	}
	m := NewManager(store, StaticSession("user-1"))
	for i := 0; i < 3; i++ {
		if err := m.Evaluate(context.Background()); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}
	m.Wait()

	orgs, locs := store.counts()
	if orgs != 0 || locs != 0 {
		t.Fatalf("creates = (%d, %d), want none", orgs, locs)
	}
	loc, org, ok := m.Selection().Current()
	if !ok || loc != "first" || org != "org-a" {
		t.Fatalf("selection = (%q, %q, %v)", loc, org, ok)
	}
}

func TestFailedCreationReleasesGuard(t *testing.T) {
	store := newFakeStore()
	store.orgErrors = []error{errors.New("backend unavailable")}
	var reported []string
	var mu sync.Mutex
	m := NewManager(store, StaticSession("user-1"), WithErrorFunc(func(kind string, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, kind)
	}))
	ctx := context.Background()

	if err := m.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	m.Wait()
	if orgState, _ := m.RequestStates(); orgState != RequestSettled {
		t.Fatalf("organization request = %v, want settled", orgState)
	}
	if m.Organization() != nil {
		t.Fatal("organization should be absent after failure")
	}

	if err := m.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	m.Wait()
	orgs, _ := store.counts()
	if orgs != 2 {
		t.Fatalf("organization creates = %d, want 2 (retry on next evaluation)", orgs)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 || reported[0] != "organization" {
		t.Fatalf("reported = %v", reported)
	}
}

func TestRunBootstrapsAndClearsOnExit(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, StaticSession("user-1"))
	watch, stop := m.Selection().Watch()
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitFor(t, watch, "loc-1")
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, _, ok := m.Selection().Current(); ok {
		t.Fatal("selection should be cleared after Run returns")
	}
	orgs, locs := store.counts()
	if orgs != 1 || locs != 1 {
		t.Fatalf("creates = (%d, %d), want (1, 1)", orgs, locs)
	}
}

func TestRunRetriesAfterFailureOnRefresh(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*fakeStore)
		wantKind string
	}{
		{
			name:     "organization lookup fails",
			setup:    func(s *fakeStore) { s.findErrors = []error{errors.New("connection reset")} },
			wantKind: "load",
		},
		{
			name:     "organization create fails",
			setup:    func(s *fakeStore) { s.orgErrors = []error{errors.New("insert failed")} },
			wantKind: "organization",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			tt.setup(store)
			failures := make(chan string, 4)
			m := NewManager(store, StaticSession("user-1"), WithErrorFunc(func(kind string, err error) {
				failures <- kind
			}))
			watch, stop := m.Selection().Watch()
			defer stop()

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- m.Run(ctx) }()
			defer func() {
				cancel()
				<-done
			}()

			select {
			case kind := <-failures:
				if kind != tt.wantKind {
					t.Fatalf("failure kind = %q, want %q", kind, tt.wantKind)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("failure was not reported")
			}
			if _, _, ok := m.Selection().Current(); ok {
				t.Fatal("selection should be unset after the failure")
			}

			m.Refresh()
			waitFor(t, watch, "loc-1")
			m.Wait()
			_, locs := store.counts()
			if locs != 1 {
				t.Fatalf("location creates = %d, want 1", locs)
			}
		})
	}
}

func TestRefreshKeepsKnownOrganization(t *testing.T) {
	store := newFakeStore()
	store.orgs["user-1"] = &model.Organization{ID: "org-a", OwnerID: "user-1"}
	store.locations["org-a"] = []model.Location{{ID: "a", OrganizationID: "org-a"}}
	m := NewManager(store, StaticSession("user-1"))
	if err := m.Evaluate(context.Background()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	queries := store.queries

	m.Refresh()
	if err := m.Evaluate(context.Background()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if store.queries != queries {
		t.Fatalf("queries = %d, want %d (nothing to reload)", store.queries, queries)
	}
}

func TestEvaluateAfterRunReturns(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, StaticSession("user-1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	orgs, locs := store.counts()

	if err := m.Evaluate(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Evaluate after Run = %v, want ErrStopped", err)
	}
	m.Wait()
	if o, l := store.counts(); o != orgs || l != locs {
		t.Fatalf("creates changed after stop: (%d, %d) -> (%d, %d)", orgs, locs, o, l)
	}
}

func TestSelect(t *testing.T) {
	store := newFakeStore()
	store.orgs["user-1"] = &model.Organization{ID: "org-a", OwnerID: "user-1"}
	store.locations["org-a"] = []model.Location{{ID: "a"}, {ID: "b"}}
	m := NewManager(store, StaticSession("user-1"))

	if err := m.Select("a"); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("Select before load = %v, want ErrUnknownLocation", err)
	}
	if err := m.Evaluate(context.Background()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if err := m.Select("b"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := m.Selection().LocationID(); got != "b" {
		t.Fatalf("active = %q, want b", got)
	}
	if err := m.Select("zzz"); !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("Select unknown = %v", err)
	}
	// Re-evaluation keeps an explicit choice.
	if err := m.Evaluate(context.Background()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := m.Selection().LocationID(); got != "b" {
		t.Fatalf("active after evaluate = %q, want b", got)
	}
}

func TestWatchCoalescesToLatest(t *testing.T) {
	sel := newSelection()
	ch, stop := sel.Watch()
	defer stop()
	if got := <-ch; got != "" {
		t.Fatalf("initial = %q", got)
	}
	sel.set("one", "org")
	sel.set("two", "org")
	sel.set("three", "org")
	if got := <-ch; got != "three" {
		t.Fatalf("latest = %q, want three", got)
	}
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %q", v)
	default:
	}
}

func TestRequestStateString(t *testing.T) {
	if RequestInFlight.String() != "in_flight" || RequestState(9).String() != "RequestState(9)" {
		t.Fatal("unexpected RequestState names")
	}
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}
