package speech

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/language"
)

type recordingEngine struct {
	mu      sync.Mutex
	voices  []Voice
	spoken  []Utterance
	release chan struct{}
	started chan struct{}
}

func (e *recordingEngine) Voices(context.Context) ([]Voice, error) { return e.voices, nil }

func (e *recordingEngine) Say(_ context.Context, u Utterance) error {
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.release != nil {
		<-e.release
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spoken = append(e.spoken, u)
	return nil
}

func (e *recordingEngine) texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.spoken))
	for i, u := range e.spoken {
		out[i] = u.Text
	}
	return out
}

func TestSpeakWithoutEngineIsNotAnError(t *testing.T) {
	s := NewSpeaker(nil, nil)
	if s.Available() {
		t.Fatal("speaker without engine must be unavailable")
	}
	if err := s.Speak(context.Background(), "olá", "pt-BR"); err != nil {
		t.Fatalf("Speak = %v, want nil", err)
	}
	s.Close()
}

func TestSpeakPlaysInOrderWithoutInterrupting(t *testing.T) {
	engine := &recordingEngine{
		release: make(chan struct{}),
		started: make(chan struct{}, 8),
	}
	s := NewSpeaker(engine, nil)

	if err := s.Speak(context.Background(), "first", "pt-BR"); err != nil {
		t.Fatal(err)
	}
	<-engine.started // first is playing
	for _, text := range []string{"second", "third"} {
		if err := s.Speak(context.Background(), text, "pt-BR"); err != nil {
			t.Fatal(err)
		}
	}
	close(engine.release)
	s.Close()

	want := []string{"first", "second", "third"}
	if got := engine.texts(); !reflect.DeepEqual(got, want) {
		t.Fatalf("spoken = %v, want %v", got, want)
	}
}

func TestSpeakUsesFixedRateVolumeAndMatchingVoice(t *testing.T) {
	engine := &recordingEngine{voices: []Voice{
		{ID: "en-us", Language: language.MustParse("en-US")},
		{ID: "pt", Language: language.MustParse("pt-PT")},
		{ID: "pt-br", Language: language.MustParse("pt-BR")},
	}}
	s := NewSpeaker(engine, nil)
	if err := s.Speak(context.Background(), "oi", "pt-BR"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if len(engine.spoken) != 1 {
		t.Fatalf("spoken %d utterances", len(engine.spoken))
	}
	u := engine.spoken[0]
	if u.Rate != 1.0 || u.Volume != 0.8 {
		t.Fatalf("rate/volume = %v/%v", u.Rate, u.Volume)
	}
	if u.Voice == nil || u.Voice.ID != "pt-br" {
		t.Fatalf("voice = %+v, want pt-br", u.Voice)
	}
}

func TestSpeakAfterClose(t *testing.T) {
	s := NewSpeaker(&recordingEngine{}, nil)
	s.Close()
	if err := s.Speak(context.Background(), "late", "pt-BR"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Speak after Close = %v, want ErrClosed", err)
	}
}

// slowVoicesEngine blocks its voice listing until release is closed.
type slowVoicesEngine struct {
	recordingEngine
	listing chan struct{}
	release chan struct{}
}

func (e *slowVoicesEngine) Voices(context.Context) ([]Voice, error) {
	close(e.listing)
	<-e.release
	return nil, nil
}

func TestCloseDoesNotWaitForVoiceListing(t *testing.T) {
	engine := &slowVoicesEngine{listing: make(chan struct{}), release: make(chan struct{})}
	s := NewSpeaker(engine, nil)

	spoke := make(chan error, 1)
	go func() { spoke <- s.Speak(context.Background(), "olá", "pt-BR") }()
	<-engine.listing

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind the voice listing")
	}

	close(engine.release)
	if err := <-spoke; !errors.Is(err, ErrClosed) {
		t.Fatalf("Speak = %v, want ErrClosed", err)
	}
}

func TestSelectVoice(t *testing.T) {
	en := Voice{ID: "en", Language: language.MustParse("en-US")}
	ptPT := Voice{ID: "pt-pt", Language: language.MustParse("pt-PT")}
	ptBR := Voice{ID: "pt-br", Language: language.MustParse("pt-BR")}
	de := Voice{ID: "de", Language: language.MustParse("de-DE")}
	want := language.MustParse("pt-BR")

	tests := []struct {
		name   string
		voices []Voice
		wantID string
		wantOK bool
	}{
		{"exact region", []Voice{en, ptPT, ptBR}, "pt-br", true},
		{"same language", []Voice{en, ptPT}, "pt-pt", true},
		{"no match", []Voice{en, de}, "", false},
		{"no voices", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectVoice(tt.voices, want)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Fatalf("SelectVoice = (%q, %v), want (%q, %v)", got.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}
