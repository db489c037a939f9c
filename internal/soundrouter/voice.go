// Package soundrouter defines the Voice boundary the Step Sequencer Engine
// and Tempo Handler trigger sound through, plus a default software-synth
// adapter. Synthesis is invoked by name, never by reaching into the engine.
package soundrouter

// Voice is the minimal sound-triggering surface sequencer playback needs.
// Synthesis internals never live behind it; implementations translate these
// calls however the target platform renders sound.
type Voice interface {
	NoteOn(track uint8, note, velocity uint8)
	NoteOff(track uint8, note uint8)
	SetParameter(track uint8, name string, value float32)
}

// NullVoice discards every call; useful for timing-only tests.
type NullVoice struct{}

func (NullVoice) NoteOn(uint8, uint8, uint8)       {}
func (NullVoice) NoteOff(uint8, uint8)             {}
func (NullVoice) SetParameter(uint8, string, float32) {}
