// Package radio defines the narrow contract the attack engine uses to drive
// a sub-GHz OOK transmitter, along with the frame bit source that feeds the
// driver's async transmit callback. Real hardware drivers live behind the
// Transmitter interface; this repository ships a simulator backend.
package radio

import (
	"sync/atomic"
	"time"
)

// DefaultBitDuration is the on-air time of one payload bit. 650 microseconds
// matches the receivers in the catalog; a faster 300 microsecond variant
// exists for bench testing against forgiving receivers.
const DefaultBitDuration = 650 * time.Microsecond

// LevelDuration is one step of an OOK waveform: carrier on or off for the
// given time.
type LevelDuration struct {
	Level    bool
	Duration time.Duration
}

// BitSource is polled by the driver for the next waveform step. ok=false is
// the end sentinel that stops the transmission.
type BitSource func() (ld LevelDuration, ok bool)

// Transmitter is the radio hardware contract. StartAsyncTx begins polling
// the bit source from the driver's context and returns false if the radio
// could not start; the caller must balance it with StopAsyncTx and put the
// radio to Sleep when done.
type Transmitter interface {
	Reset() error
	LoadOOKPreset(preset []byte) error
	SetFrequency(hz uint32) error
	StartAsyncTx(src BitSource) bool
	StopAsyncTx()
	Sleep()
}

// OOKPreset is the CC1101 register preset for raw OOK transmission.
var OOKPreset = []byte{
	0x02, 0x0D, 0x03, 0x07, 0x08, 0x32, 0x0B, 0x06, 0x15, 0x40, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// FrameSource walks a packed bit buffer MSB first, emitting one fixed-length
// LevelDuration per bit. The driver polls Next from its own goroutine while
// the engine polls Done, so the position is atomic.
type FrameSource struct {
	buf         []byte
	bitDuration time.Duration
	pos         uint32
}

// NewFrameSource wraps buf for transmission at the given per-bit duration.
func NewFrameSource(buf []byte, bitDuration time.Duration) *FrameSource {
	if bitDuration <= 0 {
		bitDuration = DefaultBitDuration
	}
	return &FrameSource{buf: buf, bitDuration: bitDuration}
}

// Next returns the next waveform step, or ok=false past the end of the
// buffer.
func (f *FrameSource) Next() (LevelDuration, bool) {
	pos := atomic.LoadUint32(&f.pos)
	if pos >= uint32(len(f.buf))*8 {
		return LevelDuration{}, false
	}
	atomic.AddUint32(&f.pos, 1)

	bit := f.buf[pos/8]>>(7-pos%8)&1 == 1
	return LevelDuration{Level: bit, Duration: f.bitDuration}, true
}

// Done reports whether every bit has been handed to the driver.
func (f *FrameSource) Done() bool {
	return atomic.LoadUint32(&f.pos) >= uint32(len(f.buf))*8
}
