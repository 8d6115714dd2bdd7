// Package catalog holds the static table of fixed-code receiver profiles the
// transmitter knows how to attack, plus the helpers that turn a catalog
// selection into a concrete attack plan: meta-target expansion, keyspace
// sizing, and the per-mode feasibility bounds.
package catalog

import (
	"errors"
	"fmt"
)

// MetaKind marks virtual catalog entries that expand to a sweep over several
// real targets instead of describing one transmittable device.
type MetaKind uint8

const (
	MetaNone MetaKind = iota
	// MetaAllKnown sweeps the named receiver models (indices 0-3).
	MetaAllKnown
	// MetaGenericBrute sweeps every real target in the catalog.
	MetaGenericBrute
)

// Target describes one fixed-code receiver profile. A code for the target is
// a DigitCount-digit base-AlphabetSize numeral; each digit value is keyed on
// the air as the low BitLengthPerDigit bits of Patterns[digit], MSB first.
type Target struct {
	Name              string
	FrequencyHz       uint32
	AlphabetSize      uint8 // 2 or 3
	DigitCount        uint8
	BitLengthPerDigit uint8
	Patterns          [3]uint32 // indexed by digit value; [2] unused for binary
	Meta              MetaKind
	Encoding          string
	UserSelectable    bool
}

// ErrKeyspaceTooLarge is returned when a profile's code space does not fit
// the numeric or memory bound of the operation being attempted.
var ErrKeyspaceTooLarge = errors.New("target keyspace too large")

// Binary OOK digit patterns shared by most garage profiles: a short and a
// long pulse in a 4-bit frame.
const (
	binB0 = 0x8 // 1000
	binB1 = 0xe // 1110
)

// Trinary patterns (18-bit frames) for MegaCode-style receivers.
const (
	triB0 = 0x020100
	triB1 = 0x03fd00
	triB2 = 0x03fdfe
)

func binary(name string, freq uint32, digits uint8, selectable bool) Target {
	return Target{
		Name:              name,
		FrequencyHz:       freq,
		AlphabetSize:      2,
		DigitCount:        digits,
		BitLengthPerDigit: 4,
		Patterns:          [3]uint32{binB0, binB1, 0},
		Encoding:          fmt.Sprintf("Binary %d-bit", digits),
		UserSelectable:    selectable,
	}
}

func trinary(name string, freq uint32, digits uint8, selectable bool) Target {
	return Target{
		Name:              name,
		FrequencyHz:       freq,
		AlphabetSize:      3,
		DigitCount:        digits,
		BitLengthPerDigit: 18,
		Patterns:          [3]uint32{triB0, triB1, triB2},
		Encoding:          fmt.Sprintf("Trinary %d-digit", digits),
		UserSelectable:    selectable,
	}
}

// Catalog is an ordered list of target profiles a sweep can run over.
type Catalog []Target

// Targets is the built-in profile table. Indices 0-3 are the named receiver
// models, 4 and 5 are the selectable meta entries, and the rest are generic
// brute profiles ordered by likelihood for the MetaGenericBrute sweep.
var Targets = buildTargets()

func buildTargets() Catalog {
	t := []Target{
		binary("Stanley/Linear 310M", 310000000, 10, true),
		trinary("MegaCode 318M", 318000000, 8, true),
		binary("Chamberlain 390M", 390000000, 9, true),
		binary("Chamberlain 315M", 315000000, 9, true),
		{
			Name:           "All Known Models",
			Meta:           MetaAllKnown,
			Encoding:       "Cycles known models",
			UserSelectable: true,
		},
		{
			Name:           "Generic (Brute)",
			Meta:           MetaGenericBrute,
			Encoding:       "All known + generic brute",
			UserSelectable: true,
		},
	}

	// Generic brute keyspaces: common frequencies crossed with the digit
	// counts seen in the wild, most likely combinations first.
	type brute struct {
		freqHz uint32
		digits uint8
	}
	for _, b := range []brute{
		{300000000, 10}, {315000000, 8}, {390000000, 8}, {390000000, 10},
		{315000000, 10}, {310000000, 8}, {300000000, 8}, {315000000, 12},
		{390000000, 12}, {310000000, 12}, {300000000, 12}, {318000000, 8},
		{318000000, 10}, {318000000, 12}, {303875000, 8}, {303875000, 10},
		{433920000, 8}, {433920000, 10}, {303875000, 12}, {433920000, 12},
		{310000000, 9}, {300000000, 9}, {318000000, 9}, {303875000, 9},
		{433920000, 9}, {310000000, 11}, {315000000, 11}, {390000000, 11},
		{300000000, 11}, {318000000, 11}, {433920000, 11}, {310000000, 14},
		{315000000, 14}, {390000000, 14}, {300000000, 14}, {318000000, 14},
		{433920000, 14},
	} {
		name := fmt.Sprintf("Brute %dM %db", b.freqHz/1000000, b.digits)
		t = append(t, binary(name, b.freqHz, b.digits, false))
	}

	t = append(t,
		trinary("Brute 315M 9d Tri", 315000000, 9, false),
		trinary("Brute 390M 9d Tri", 390000000, 9, false),
	)
	return t
}

// IsReal reports whether the target at index is a transmittable profile.
func (c Catalog) IsReal(index int) bool {
	return index >= 0 && index < len(c) && c[index].Meta == MetaNone
}

// Saveable reports whether a discovered code may be persisted against the
// target at index. Only the user-selectable named models carry saved codes;
// generic brute profiles do not.
func (c Catalog) Saveable(index int) bool {
	return c.IsReal(index) && c[index].UserSelectable
}

// Expand resolves a catalog selection into the ordered list of real target
// indices the attack engine should visit. A real target expands to itself;
// meta entries expand to their sweep range with nested meta entries skipped.
func (c Catalog) Expand(index int) ([]int, error) {
	if index < 0 || index >= len(c) {
		return nil, fmt.Errorf("target index %d out of range", index)
	}
	t := &c[index]
	switch t.Meta {
	case MetaNone:
		return []int{index}, nil
	case MetaAllKnown:
		out := make([]int, 0, len(c))
		for i := range c {
			if c[i].Meta == MetaNone && c[i].UserSelectable {
				out = append(out, i)
			}
		}
		return out, nil
	case MetaGenericBrute:
		out := make([]int, 0, len(c))
		for i := range c {
			if c[i].Meta == MetaNone {
				out = append(out, i)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("target %q has unknown meta kind %d", t.Name, t.Meta)
	}
}

// KeyspaceSize returns k^n for the target, or ErrKeyspaceTooLarge when the
// code space does not fit an unsigned 32-bit integer (binary n > 31,
// trinary n > 19).
func (t *Target) KeyspaceSize() (uint32, error) {
	k := uint64(t.AlphabetSize)
	n := int(t.DigitCount)
	if (k == 2 && n > 31) || (k == 3 && n > 19) {
		return 0, fmt.Errorf("%s: %d base-%d digits: %w", t.Name, n, k, ErrKeyspaceTooLarge)
	}
	size := uint64(1)
	for i := 0; i < n; i++ {
		size *= k
	}
	return uint32(size), nil
}

// Aggregate sums the keyspace sizes of the given real targets, skipping any
// whose code space exceeds the 32-bit bound and, when deBruijn is set, any
// that fail the de Bruijn working-set bound. The result is the total number
// of codes a sweep over those targets will transmit.
func (c Catalog) Aggregate(indices []int, deBruijn bool) uint32 {
	var total uint32
	for _, i := range indices {
		t := &c[i]
		if deBruijn && !t.DeBruijnFeasible() {
			continue
		}
		size, err := t.KeyspaceSize()
		if err != nil {
			continue
		}
		total += size
	}
	return total
}

// DeBruijnFeasible reports whether the target's keyspace fits the de Bruijn
// generator's working-set bound (binary n <= 13, trinary n <= 8). This is
// deliberately tighter than the 32-bit bound of KeyspaceSize.
func (t *Target) DeBruijnFeasible() bool {
	if t.AlphabetSize == 3 {
		return t.DigitCount <= 8
	}
	return t.DigitCount <= 13
}
