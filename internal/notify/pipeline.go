// Package notify announces newly booked appointments of the active location
// through speech.
//
// A Pipeline keeps at most one realtime subscription open, for the location
// currently selected. Every delivered appointment is announced once per
// subscription: ids are marked processed before any lookup starts, so a
// replayed or duplicated delivery is absorbed. Announcements run
// concurrently and may finish out of order.
//
// When the subscription is torn down (location switched or pipeline
// stopped), announcements still being enriched are dropped instead of
// spoken. A feed that stops on its own, or fails to open, is opened again
// for the same location after a growing delay.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/logging"
	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/model"
)

// Watcher publishes the active location id ("" when none) on the returned
// channel, latest value first.
type Watcher interface {
	Watch() (<-chan string, func())
}

// Feed is an open realtime subscription. Close must release it completely
// before returning. Done is closed once the feed stops delivering.
type Feed interface {
	Close() error
	Done() <-chan struct{}
}

// Subscriber opens a realtime feed of appointments inserted for a location.
type Subscriber interface {
	Subscribe(ctx context.Context, locationID string, onInsert func(model.Appointment)) (Feed, error)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, locationID string, onInsert func(model.Appointment)) (Feed, error)

// Subscribe implements Subscriber.
func (f SubscriberFunc) Subscribe(ctx context.Context, locationID string, onInsert func(model.Appointment)) (Feed, error) {
	return f(ctx, locationID, onInsert)
}

// maxResubscribeDelay caps the delay between attempts to reopen a feed.
const maxResubscribeDelay = 30 * time.Second

// Directory resolves display names.
type Directory interface {
	ProfessionalName(ctx context.Context, id string) (string, error)
	ServiceName(ctx context.Context, id string) (string, error)
}

// Flag reports whether vocal notifications are switched on.
type Flag interface {
	VocalNotificationEnabled() bool
}

// Speaker delivers an utterance.
type Speaker interface {
	Speak(ctx context.Context, text, lang string) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.Component(logger, "notify") }
}

// WithClock overrides the time source used for "today".
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithTimeZone sets the zone announcements are rendered in.
func WithTimeZone(loc *time.Location) Option {
	return func(p *Pipeline) { p.loc = loc }
}

// WithResubscribeDelay sets the first delay before reopening a failed feed.
// It doubles on every further failure for the same location.
func WithResubscribeDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.resubscribeDelay = d
		}
	}
}

// WithLanguage sets the BCP 47 tag passed to the speaker.
func WithLanguage(tag string) Option {
	return func(p *Pipeline) { p.language = tag }
}

// Pipeline subscribes to appointments of the active location and announces
// them.
type Pipeline struct {
	selection  Watcher
	subscriber Subscriber
	directory  Directory
	settings   Flag
	speaker    Speaker
	logger     *slog.Logger
	now        func() time.Time
	loc        *time.Location
	language   string

	resubscribeDelay time.Duration

	chains sync.WaitGroup

	mu     sync.Mutex
	active *session
}

// session is the lifetime of one subscription. Its processed set is never
// shared with another session.
type session struct {
	locationID string
	ctx        context.Context
	cancel     context.CancelFunc
	feed       Feed

	mu        sync.Mutex
	processed map[string]struct{}
}

// markProcessed records id and reports whether it was new.
func (s *session) markProcessed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.processed[id]; seen {
		return false
	}
	s.processed[id] = struct{}{}
	return true
}

// New constructs a Pipeline. selection is the active-location handle the
// pipeline follows.
func New(selection Watcher, subscriber Subscriber, directory Directory, settings Flag, speaker Speaker, opts ...Option) *Pipeline {
	p := &Pipeline{
		selection:  selection,
		subscriber: subscriber,
		directory:  directory,
		settings:   settings,
		speaker:    speaker,
		logger:     logging.Discard(),
		now:        time.Now,
		loc:        time.Local,
		language:   "pt-BR",

		resubscribeDelay: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run follows the active location until ctx is done, keeping exactly one
// subscription open for it. The previous subscription is released before
// the next one opens.
func (p *Pipeline) Run(ctx context.Context) error {
	changes, stop := p.selection.Watch()
	defer stop()
	defer p.teardown()

	var (
		want  string
		retry <-chan time.Time
		delay = p.resubscribeDelay
	)
	schedule := func() {
		retry = time.After(delay)
		delay = min(delay*2, maxResubscribeDelay)
	}
	open := func() {
		if err := p.subscribe(ctx, want); err != nil {
			p.logger.Error("subscribe failed", "location_id", want, "error", err, "retry_in", delay)
			schedule()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case locationID := <-changes:
			if current, ok := p.Subscribed(); ok && current == locationID {
				continue
			}
			p.teardown()
			want, retry, delay = locationID, nil, p.resubscribeDelay
			if want != "" {
				open()
			}
		case <-p.feedDone():
			p.logger.Warn("appointment feed stopped", "location_id", want, "retry_in", delay)
			p.teardown()
			schedule()
		case <-retry:
			retry = nil
			if _, ok := p.Subscribed(); !ok && want != "" {
				open()
			}
		}
	}
}

// feedDone returns the Done channel of the open feed, or nil when idle.
func (p *Pipeline) feedDone() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil || p.active.feed == nil {
		return nil
	}
	return p.active.feed.Done()
}

// Subscribed reports the location of the open subscription.
func (p *Pipeline) Subscribed() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return "", false
	}
	return p.active.locationID, true
}

// Handle processes an appointment on the open subscription, as if the feed
// had delivered it. It reports false when there is no subscription.
func (p *Pipeline) Handle(appt model.Appointment) bool {
	p.mu.Lock()
	sess := p.active
	p.mu.Unlock()
	if sess == nil {
		return false
	}
	p.deliver(sess, appt)
	return true
}

// Wait blocks until every announcement started so far has finished or been
// dropped.
func (p *Pipeline) Wait() {
	p.chains.Wait()
}

func (p *Pipeline) subscribe(ctx context.Context, locationID string) error {
	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		locationID: locationID,
		ctx:        sessCtx,
		cancel:     cancel,
		processed:  make(map[string]struct{}),
	}
	p.mu.Lock()
	p.active = sess
	p.mu.Unlock()

	feed, err := p.subscriber.Subscribe(sessCtx, locationID, func(appt model.Appointment) {
		p.deliver(sess, appt)
	})
	if err != nil {
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
		cancel()
		return err
	}
	p.mu.Lock()
	sess.feed = feed
	p.mu.Unlock()
	p.logger.Info("subscribed to appointments", "location_id", locationID)
	return nil
}

func (p *Pipeline) teardown() {
	p.mu.Lock()
	sess := p.active
	p.active = nil
	p.mu.Unlock()
	if sess == nil {
		return
	}
	sess.cancel()
	if sess.feed != nil {
		if err := sess.feed.Close(); err != nil {
			p.logger.Warn("unsubscribe", "location_id", sess.locationID, "error", err)
		}
	}
	p.logger.Info("unsubscribed from appointments", "location_id", sess.locationID)
}

func (p *Pipeline) current(sess *session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active == sess
}

func (p *Pipeline) deliver(sess *session, appt model.Appointment) {
	if !sess.markProcessed(appt.ID) {
		p.logger.Debug("duplicate appointment ignored", "appointment_id", appt.ID)
		return
	}
	if p.settings == nil || !p.settings.VocalNotificationEnabled() {
		p.logger.Debug("vocal notification disabled", "appointment_id", appt.ID)
		return
	}
	p.chains.Add(1)
	go func() {
		defer p.chains.Done()
		p.announce(sess, appt)
	}()
}

func (p *Pipeline) announce(sess *session, appt model.Appointment) {
	professional, service := p.resolveNames(sess.ctx, appt)
	text := FormatAnnouncement(appt.ClientName, professional, service, appt.StartTime, p.now(), p.loc)

	if !p.current(sess) {
		p.logger.Debug("subscription gone, announcement dropped",
			"appointment_id", appt.ID, "location_id", sess.locationID)
		return
	}
	if p.speaker == nil {
		p.logger.Warn("no speaker configured, announcement skipped", "appointment_id", appt.ID)
		return
	}
	if err := p.speaker.Speak(sess.ctx, text, p.language); err != nil {
		p.logger.Warn("announcement failed", "appointment_id", appt.ID, "error", err)
		return
	}
	p.logger.Info("appointment announced", "appointment_id", appt.ID)
}

// resolveNames looks the professional and service up concurrently. Missing
// references and failed lookups fall back to the placeholders.
func (p *Pipeline) resolveNames(ctx context.Context, appt model.Appointment) (professional, service string) {
	professional, service = PlaceholderProfessional, PlaceholderService
	var g errgroup.Group
	if id := deref(appt.ProfessionalID); id != "" {
		g.Go(func() error {
			name, err := p.directory.ProfessionalName(ctx, id)
			if err != nil {
				p.logger.Debug("professional lookup failed", "professional_id", id, "error", err)
				return nil
			}
			if name != "" {
				professional = name
			}
			return nil
		})
	}
	if id := deref(appt.ServiceID); id != "" {
		g.Go(func() error {
			name, err := p.directory.ServiceName(ctx, id)
			if err != nil {
				p.logger.Debug("service lookup failed", "service_id", id, "error", err)
				return nil
			}
			if name != "" {
				service = name
			}
			return nil
		})
	}
	_ = g.Wait()
	return professional, service
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
