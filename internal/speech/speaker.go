// Package speech turns announcement text into audible speech.
//
// A Speaker queues utterances and plays them one after another through an
// Engine. When the host has no speech engine the Speaker still accepts
// utterances, logs that speech is unavailable and drops them.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/text/language"

	"github.com/diegoteixeira-br/barber-soft-v0.195/internal/logging"
)

// ErrClosed is returned by Speak after Close.
var ErrClosed = errors.New("speaker closed")

// Announcement voice parameters. Rate is relative to the engine's normal
// speed; Volume is a fraction of full volume.
const (
	DefaultRate   = 1.0
	DefaultVolume = 0.8
)

// Voice is a synthesizer voice.
type Voice struct {
	ID       string
	Name     string
	Language language.Tag
}

// Utterance is one piece of text to speak.
type Utterance struct {
	Text     string
	Language language.Tag
	// Voice is nil when no installed voice matches Language; the engine
	// then uses its default.
	Voice  *Voice
	Rate   float64
	Volume float64
}

// Engine synthesizes speech.
type Engine interface {
	Voices(ctx context.Context) ([]Voice, error)
	Say(ctx context.Context, u Utterance) error
}

// Speaker plays utterances in FIFO order. A new utterance never interrupts
// the one currently playing.
type Speaker struct {
	engine Engine
	logger *slog.Logger

	mu      sync.Mutex
	queue   []Utterance
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
	voices  []Voice
	loaded  bool
}

// NewSpeaker starts a Speaker over engine. A nil engine yields a Speaker
// that reports itself unavailable.
func NewSpeaker(engine Engine, logger *slog.Logger) *Speaker {
	s := &Speaker{
		engine:  engine,
		logger:  logging.Component(logger, "speech"),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	if engine == nil {
		close(s.stopped)
		return s
	}
	go s.run()
	return s
}

// Available reports whether the host can synthesize speech.
func (s *Speaker) Available() bool {
	return s != nil && s.engine != nil
}

// Speak enqueues text in the given BCP 47 language. Missing speech support
// is not an error: the text is dropped with a warning.
func (s *Speaker) Speak(ctx context.Context, text, lang string) error {
	if !s.Available() {
		if s != nil {
			s.logger.Warn("speech synthesis not supported, announcement skipped")
		}
		return nil
	}
	tag, err := language.Parse(lang)
	if err != nil {
		s.logger.Warn("unknown language tag, using engine default", "language", lang, "error", err)
		tag = language.Und
	}
	u := Utterance{
		Text:     text,
		Language: tag,
		Rate:     DefaultRate,
		Volume:   DefaultVolume,
	}
	if v, ok := SelectVoice(s.installedVoices(ctx), tag); ok {
		u.Voice = &v
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue = append(s.queue, u)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting utterances, plays what is already queued and waits
// for the player to finish.
func (s *Speaker) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
	<-s.stopped
}

func (s *Speaker) run() {
	defer close(s.stopped)
	for {
		u, ok, closed := s.next()
		if ok {
			if err := s.engine.Say(context.Background(), u); err != nil {
				s.logger.Error("speak failed", "error", err)
			}
			continue
		}
		if closed {
			return
		}
		<-s.wake
	}
}

func (s *Speaker) next() (Utterance, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Utterance{}, false, s.closed
	}
	u := s.queue[0]
	s.queue = s.queue[1:]
	return u, true, s.closed
}

// installedVoices lists the engine's voices once and caches the result. A
// failed listing is retried on the next utterance.
// The listing runs without holding s.mu so the player and Close are never
// stalled behind it.
func (s *Speaker) installedVoices(ctx context.Context) []Voice {
	s.mu.Lock()
	if s.loaded {
		voices := s.voices
		s.mu.Unlock()
		return voices
	}
	s.mu.Unlock()

	voices, err := s.engine.Voices(ctx)
	if err != nil {
		s.logger.Warn("list voices", "error", err)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.voices = voices
		s.loaded = true
	}
	return s.voices
}

// SelectVoice picks the installed voice that best matches want: the exact
// language and region first, then any voice of the same language. ok is
// false when nothing matches.
func SelectVoice(voices []Voice, want language.Tag) (Voice, bool) {
	if len(voices) == 0 || want == language.Und {
		return Voice{}, false
	}
	for _, v := range voices {
		if v.Language == want {
			return v, true
		}
	}
	tags := make([]language.Tag, len(voices))
	for i, v := range voices {
		tags[i] = v.Language
	}
	_, index, confidence := language.NewMatcher(tags).Match(want)
	if confidence == language.No {
		return Voice{}, false
	}
	return voices[index], true
}
