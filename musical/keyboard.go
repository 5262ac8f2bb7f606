package musical

import "unicode"

// Keyboard layout of a piano on a QWERTY row pair: the home row holds the
// white keys and the row above the black keys.
var keyboardLayout = map[rune]int{
	'a': 0, 'w': 1, 's': 2, 'e': 3, 'd': 4, 'f': 5, 't': 6, 'g': 7,
	'y': 8, 'h': 9, 'u': 10, 'j': 11, 'k': 12, 'o': 13, 'l': 14, 'p': 15,
}

// KeyToNote maps a computer key to a MIDI note. Octave 4 puts 'a' on C4 (60).
func KeyToNote(key rune, octave int) (uint8, bool) {
	semi, ok := keyboardLayout[unicode.ToLower(key)]
	if !ok {
		return 0, false
	}
	note := (octave+1)*12 + semi
	if note < 0 || note > 127 {
		return 0, false
	}
	return uint8(note), true
}
