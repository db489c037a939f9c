package soundrouter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/sinshu/go-meltysynth/meltysynth"
)

// SampleRate is the audio sample rate used for synthesis.
const SampleRate = 44100

var (
	sharedAudioContext *audio.Context
	sharedAudioMutex   sync.Mutex
)

func getAudioContext() *audio.Context {
	sharedAudioMutex.Lock()
	defer sharedAudioMutex.Unlock()
	if sharedAudioContext == nil {
		sharedAudioContext = audio.NewContext(SampleRate)
	}
	return sharedAudioContext
}

// MeltysynthVoice is the default Voice implementation, forwarding sequencer
// triggers to a go-meltysynth synthesizer and streaming its render through
// an ebiten audio player.
type MeltysynthVoice struct {
	mu        sync.Mutex
	synth     *meltysynth.Synthesizer
	soundFont *meltysynth.SoundFont
	player    *audio.Player
	stream    *voiceStream
	muted     bool
}

// NewMeltysynthVoice loads soundFontData and arms a synthesizer and audio
// player against it. The player starts immediately; silence is rendered
// until a NoteOn arrives.
func NewMeltysynthVoice(soundFontData []byte) (*MeltysynthVoice, error) {
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(soundFontData))
	if err != nil {
		return nil, fmt.Errorf("soundrouter: parse soundfont: %w", err)
	}

	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("soundrouter: create synthesizer: %w", err)
	}

	v := &MeltysynthVoice{synth: synth, soundFont: sf}
	v.stream = &voiceStream{synth: synth}

	player, err := getAudioContext().NewPlayer(v.stream)
	if err != nil {
		return nil, fmt.Errorf("soundrouter: create audio player: %w", err)
	}
	v.player = player
	player.Play()
	return v, nil
}

// SetMuted silences output without tearing down the player.
func (v *MeltysynthVoice) SetMuted(muted bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.muted = muted
	if muted {
		v.player.SetVolume(0)
	} else {
		v.player.SetVolume(1)
	}
}

// NoteOn forwards a sequencer trigger to the synthesizer on a channel
// derived from the track index.
func (v *MeltysynthVoice) NoteOn(track uint8, note, velocity uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.synth.NoteOn(int32(track), int32(note), int32(velocity))
}

// NoteOff forwards a sequencer note-off.
func (v *MeltysynthVoice) NoteOff(track uint8, note uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.synth.NoteOff(int32(track), int32(note))
}

// SetParameter maps a small set of named parameters onto MIDI CC messages
// understood by the synthesizer; unrecognized names are ignored, keeping
// this a name-invoked boundary rather than a full synthesis control surface.
func (v *MeltysynthVoice) SetParameter(track uint8, name string, value float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cc := ccForParameter(name)
	if cc < 0 {
		return
	}
	v.synth.ProcessMidiMessage(int32(track), 0xB0, int32(cc), int32(value*127))
}

func ccForParameter(name string) int {
	switch name {
	case "volume":
		return 7
	case "pan":
		return 10
	case "cutoff":
		return 74
	case "resonance":
		return 71
	default:
		return -1
	}
}

// voiceStream implements io.Reader for ebiten's audio.Player, rendering the
// synthesizer's float32 stereo output as interleaved little-endian int16
// frames.
type voiceStream struct {
	synth *meltysynth.Synthesizer
	mu    sync.Mutex
}

func (s *voiceStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := len(p) / 4
	if samples == 0 {
		return 0, nil
	}

	left := make([]float32, samples)
	right := make([]float32, samples)
	s.synth.Render(left, right)

	for i := 0; i < samples; i++ {
		l := int16(clamp(left[i]) * 32767)
		r := int16(clamp(right[i]) * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(r))
	}
	return samples * 4, nil
}

func clamp(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
