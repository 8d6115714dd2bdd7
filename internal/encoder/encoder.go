// Package encoder turns an integer remote-control code into the packed
// on-off-keyed bit buffer a receiver expects. The code is spelled out as a
// base-k numeral, most significant digit first, and each digit is replaced by
// the target profile's per-digit waveform pattern.
package encoder

import (
	"fmt"

	"sesame-tx/internal/catalog"
)

// PayloadSize returns the byte length of one encoded payload for the target.
func PayloadSize(t *catalog.Target) int {
	totalBits := int(t.DigitCount) * int(t.BitLengthPerDigit)
	return (totalBits + 7) / 8
}

// Encode renders code as a DigitCount-digit base-AlphabetSize numeral and
// packs the digit waveforms MSB first into a fresh buffer. Unused trailing
// bits of the final byte are zero. Returns catalog.ErrKeyspaceTooLarge when
// the target's code space exceeds 32 bits.
func Encode(code uint32, t *catalog.Target) ([]byte, error) {
	size, err := t.KeyspaceSize()
	if err != nil {
		return nil, err
	}
	if code >= size {
		return nil, fmt.Errorf("code %d outside keyspace of %s (%d)", code, t.Name, size)
	}

	buf := make([]byte, PayloadSize(t))
	k := uint32(t.AlphabetSize)
	divisor := size / k // k^(n-1)

	bitOffset := 0
	remainder := code
	for i := uint8(0); i < t.DigitCount; i++ {
		digit := uint8(remainder / divisor)
		remainder %= divisor
		if divisor >= k {
			divisor /= k
		}
		bitOffset = AppendDigit(buf, bitOffset, digit, t)
	}
	return buf, nil
}

// AppendDigit writes the waveform for one digit value into buf starting at
// bitOffset and returns the new offset. The pattern's low BitLengthPerDigit
// bits are emitted MSB first. buf must be large enough; digits append
// back-to-back so consecutive calls build a contiguous symbol stream.
func AppendDigit(buf []byte, bitOffset int, digit uint8, t *catalog.Target) int {
	pattern := t.Patterns[digit]
	width := int(t.BitLengthPerDigit)
	for j := 0; j < width; j++ {
		if pattern>>(width-1-j)&1 == 1 {
			byteIdx := bitOffset / 8
			buf[byteIdx] |= 1 << (7 - bitOffset%8)
		}
		bitOffset++
	}
	return bitOffset
}

// Decode re-parses an encoded payload back into the code it carries by
// matching each digit-sized bit window against the target's patterns. It is
// the inverse of Encode for any payload Encode produced.
func Decode(buf []byte, t *catalog.Target) (uint32, error) {
	k := uint32(t.AlphabetSize)
	width := int(t.BitLengthPerDigit)
	mask := uint32(1)<<width - 1

	var code uint32
	bitOffset := 0
	for i := uint8(0); i < t.DigitCount; i++ {
		var window uint32
		for j := 0; j < width; j++ {
			byteIdx := bitOffset / 8
			if byteIdx >= len(buf) {
				return 0, fmt.Errorf("payload truncated at digit %d", i)
			}
			bit := buf[byteIdx] >> (7 - bitOffset%8) & 1
			window = window<<1 | uint32(bit)
			bitOffset++
		}

		matched := false
		for d := uint32(0); d < k; d++ {
			if t.Patterns[d]&mask == window {
				code = code*k + d
				matched = true
				break
			}
		}
		if !matched {
			return 0, fmt.Errorf("digit %d: no pattern matches window %#x", i, window)
		}
	}
	return code, nil
}
