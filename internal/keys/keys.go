// Package keys models chords as clean modifier sets plus an optional key code.
package keys

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Modifiers is a set of the four app-level modifier keys. OS-internal
// flag bits (caps lock, numpad, left/right distinctions) are discarded
// at the event-source boundary before a value of this type is built.
type Modifiers uint8

const (
	ModCtrl Modifiers = 1 << iota
	ModAlt
	ModShift
	ModSuper
)

// Code identifies one non-modifier key in a platform-neutral way.
// Values follow Linux input event codes; CodeNone marks a chord with
// no ordinary key and is never a valid key code.
type Code uint16

const CodeNone Code = 0

// Chord is the configured activation gesture: required modifiers plus
// an optional non-modifier key.
type Chord struct {
	Code      Code
	Modifiers Modifiers
}

// ErrEmptyChord rejects a chord with neither modifiers nor a key.
var ErrEmptyChord = errors.New("chord requires at least one modifier or key")

// Has reports whether every modifier in want is present.
func (m Modifiers) Has(want Modifiers) bool {
	return m&want == want
}

// Contains reports whether m is a (non-strict) superset of other.
func (m Modifiers) Contains(other Modifiers) bool {
	return m&other == other
}

// ModifierOnly reports whether the chord has no ordinary key.
func (c Chord) ModifierOnly() bool {
	return c.Code == CodeNone
}

// Validate enforces the non-empty chord invariant.
func (c Chord) Validate() error {
	if c.Code == CodeNone && c.Modifiers == 0 {
		return ErrEmptyChord
	}
	return nil
}

// modifierNames is ordered for deterministic String output.
var modifierNames = []struct {
	mod  Modifiers
	name string
}{
	{ModCtrl, "ctrl"},
	{ModAlt, "alt"},
	{ModShift, "shift"},
	{ModSuper, "super"},
}

var modifierAliases = map[string]Modifiers{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"shift":   ModShift,
	"super":   ModSuper,
	"meta":    ModSuper,
	"cmd":     ModSuper,
	"win":     ModSuper,
}

// Linux input-event codes for the keys parlo accepts in chord specs.
var namedCodes = map[string]Code{
	"esc":       1,
	"tab":       15,
	"enter":     28,
	"space":     57,
	"backspace": 14,
	"insert":    110,
	"delete":    111,
	"home":      102,
	"end":       107,
	"pageup":    104,
	"pagedown":  109,
	"f1":        59, "f2": 60, "f3": 61, "f4": 62,
	"f5": 63, "f6": 64, "f7": 65, "f8": 66,
	"f9": 67, "f10": 68, "f11": 87, "f12": 88,
	"a": 30, "b": 48, "c": 46, "d": 32, "e": 18, "f": 33, "g": 34,
	"h": 35, "i": 23, "j": 36, "k": 37, "l": 38, "m": 50, "n": 49,
	"o": 24, "p": 25, "q": 16, "r": 19, "s": 31, "t": 20, "u": 22,
	"v": 47, "w": 17, "x": 45, "y": 21, "z": 44,
	"0": 11, "1": 2, "2": 3, "3": 4, "4": 5,
	"5": 6, "6": 7, "7": 8, "8": 9, "9": 10,
}

// Parse reads a chord spec like "ctrl+alt", "super+space", "ctrl+shift+d".
// Trailing modifier-only specs are valid; an empty spec is not.
func Parse(spec string) (Chord, error) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	if spec == "" {
		return Chord{}, ErrEmptyChord
	}

	var chord Chord
	parts := strings.Split(spec, "+")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Chord{}, fmt.Errorf("chord %q has an empty component", spec)
		}
		if mod, ok := modifierAliases[part]; ok {
			chord.Modifiers |= mod
			continue
		}
		code, ok := namedCodes[part]
		if !ok {
			return Chord{}, fmt.Errorf("chord %q: unknown key %q", spec, part)
		}
		if chord.Code != CodeNone {
			return Chord{}, fmt.Errorf("chord %q has more than one non-modifier key", spec)
		}
		if i != len(parts)-1 {
			return Chord{}, fmt.Errorf("chord %q: key %q must come last", spec, part)
		}
		chord.Code = code
	}

	if err := chord.Validate(); err != nil {
		return Chord{}, err
	}
	return chord, nil
}

// String renders the canonical spec form; Parse(c.String()) == c for
// any valid chord built from known codes.
func (c Chord) String() string {
	parts := make([]string, 0, 5)
	for _, entry := range modifierNames {
		if c.Modifiers.Has(entry.mod) {
			parts = append(parts, entry.name)
		}
	}
	if c.Code != CodeNone {
		parts = append(parts, codeName(c.Code))
	}
	return strings.Join(parts, "+")
}

// codeName reverses namedCodes; collisions resolve to the
// lexicographically smallest name for determinism.
func codeName(code Code) string {
	candidates := make([]string, 0, 1)
	for name, c := range namedCodes {
		if c == code {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return fmt.Sprintf("key%d", code)
	}
	sort.Strings(candidates)
	return candidates[0]
}

// reserved lists chords claimed by common desktop environments; a
// match warns the user rather than blocking activation.
var reserved = []Chord{
	{Code: namedCodes["tab"], Modifiers: ModAlt},
	{Code: namedCodes["tab"], Modifiers: ModSuper},
	{Code: namedCodes["l"], Modifiers: ModSuper},
	{Code: namedCodes["q"], Modifiers: ModSuper},
	{Code: namedCodes["delete"], Modifiers: ModCtrl | ModAlt},
	{Code: namedCodes["esc"], Modifiers: ModCtrl | ModAlt},
}

// Reserved reports whether the chord collides with a known
// OS-reserved shortcut.
func Reserved(c Chord) bool {
	for _, r := range reserved {
		if r == c {
			return true
		}
	}
	return false
}
