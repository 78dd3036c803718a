package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// espeak's own defaults: 175 words per minute, amplitude 100.
const (
	espeakBaseWPM       = 175
	espeakBaseAmplitude = 100
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Espeak drives the espeak-ng (or classic espeak) command line synthesizer.
type Espeak struct {
	command string
	run     runFunc
}

// LookupEspeak finds a synthesizer binary. command overrides the search;
// otherwise espeak-ng and then espeak are looked up on PATH. ok is false
// when none is installed.
func LookupEspeak(command string) (*Espeak, bool) {
	candidates := []string{"espeak-ng", "espeak"}
	if strings.TrimSpace(command) != "" {
		candidates = []string{command}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return &Espeak{command: path, run: runCommand}, true
		}
	}
	return nil, false
}

// Voices implements Engine.
func (e *Espeak) Voices(ctx context.Context) ([]Voice, error) {
	out, err := e.run(ctx, e.command, "--voices")
	if err != nil {
		return nil, err
	}
	return parseVoices(out), nil
}

// Say implements Engine. It returns once playback has finished.
func (e *Espeak) Say(ctx context.Context, u Utterance) error {
	_, err := e.run(ctx, e.command, espeakArgs(u)...)
	return err
}

func espeakArgs(u Utterance) []string {
	var args []string
	switch {
	case u.Voice != nil && u.Voice.ID != "":
		args = append(args, "-v", u.Voice.ID)
	case u.Language != language.Und:
		args = append(args, "-v", strings.ToLower(u.Language.String()))
	}
	rate := u.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	volume := u.Volume
	if volume < 0 {
		volume = 0
	}
	args = append(args,
		"-s", strconv.Itoa(int(math.Round(espeakBaseWPM*rate))),
		"-a", strconv.Itoa(int(math.Round(espeakBaseAmplitude*volume))),
		"--", u.Text,
	)
	return args
}

// parseVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  pt-br           --/M      Portuguese_(Brazil) roa/pt-BR
func parseVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		tag, err := language.Parse(fields[1])
		if err != nil {
			continue
		}
		voices = append(voices, Voice{
			ID:       fields[1],
			Name:     strings.ReplaceAll(fields[3], "_", " "),
			Language: tag,
		})
	}
	return voices
}
