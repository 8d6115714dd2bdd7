package attack

import "fmt"

// Mode selects the enumeration strategy for an attack run.
type Mode uint8

const (
	// ModeCompatibility transmits one code per burst with full inter-code
	// gaps. Slowest, most receiver-compatible.
	ModeCompatibility Mode = iota
	// ModeStream batches encoded payloads into chunked bursts.
	ModeStream
	// ModeDeBruijn streams a de Bruijn digit sequence so consecutive codes
	// share n-1 digits of airtime. Fastest full coverage.
	ModeDeBruijn
	// ModeReplay retransmits a previously saved code a few times.
	ModeReplay
)

var modeNames = map[Mode]string{
	ModeCompatibility: "compatibility",
	ModeStream:        "stream",
	ModeDeBruijn:      "debruijn",
	ModeReplay:        "replay",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", m)
}

// ParseMode converts the API/config spelling of a mode into a Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown attack mode: %q", s)
}
