package radio

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Frame is one recorded simulated transmission.
type Frame struct {
	FrequencyHz uint32
	Bits        []bool
}

// Simulator is a Transmitter that drains the bit source immediately instead
// of keying a carrier, recording every frame it "transmits". It backs the
// sim radio backend and the engine tests.
type Simulator struct {
	logger zerolog.Logger

	mu        sync.Mutex
	frequency uint32
	frames    []Frame
	asleep    bool
}

// NewSimulator creates a simulator backend.
func NewSimulator() *Simulator {
	return &Simulator{
		logger: log.With().Str("component", "radio-sim").Logger(),
	}
}

// Reset clears pending radio state.
func (s *Simulator) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asleep = false
	return nil
}

// LoadOOKPreset accepts any preset; the simulator has no registers to load.
func (s *Simulator) LoadOOKPreset(preset []byte) error {
	s.logger.Debug().Int("presetBytes", len(preset)).Msg("OOK preset loaded")
	return nil
}

// SetFrequency records the carrier frequency for subsequent frames.
func (s *Simulator) SetFrequency(hz uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frequency = hz
	return nil
}

// StartAsyncTx drains src synchronously, recording the levels as one frame.
// Real drivers poll the source from an interrupt context; draining inline
// preserves the contract (source exhausted, Done true) without the timing.
func (s *Simulator) StartAsyncTx(src BitSource) bool {
	var bits []bool
	for {
		ld, ok := src()
		if !ok {
			break
		}
		bits = append(bits, ld.Level)
	}

	s.mu.Lock()
	s.frames = append(s.frames, Frame{FrequencyHz: s.frequency, Bits: bits})
	frequency := s.frequency
	s.mu.Unlock()

	s.logger.Debug().Uint32("frequencyHz", frequency).Int("bits", len(bits)).
		Msg("Simulated transmission")
	return true
}

// StopAsyncTx is a no-op; the simulated transmission already completed.
func (s *Simulator) StopAsyncTx() {}

// Sleep parks the simulated radio.
func (s *Simulator) Sleep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asleep = true
}

// Frames returns a copy of every frame transmitted so far.
func (s *Simulator) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// FrameCount returns the number of transmissions performed.
func (s *Simulator) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}
