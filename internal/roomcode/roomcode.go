// Package roomcode generates and validates the short codes participants use
// to find a room.
package roomcode

import (
	"crypto/rand"
	"regexp"
	"strings"
)

// Alphabet excludes characters that read ambiguously when a code is shared
// out loud or scribbled on a whiteboard: 0/O, 1/I/L, 5/S, 8/B, 6/G, 2/Z are
// collapsed to one survivor each.
const Alphabet = "23467ACDEFHJKMNPQRTUVWXY"

// Length of every room code.
const Length = 4

// Join codes are accepted more loosely than generated ones so that a typo of
// an excluded character still reaches the existence check.
var joinCodeRe = regexp.MustCompile(`^[A-Z0-9]{4}$`)

// Generate returns a random code of Length characters drawn uniformly from
// Alphabet. Random bytes at or above the largest multiple of the alphabet
// size are rejected; reducing them modulo 24 would skew the first 16
// characters of the alphabet.
func Generate() (string, error) {
	const limit = 256 - 256%len(Alphabet)

	code := make([]byte, 0, Length)
	buf := make([]byte, 2*Length)
	for len(code) < Length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, Alphabet[int(b)%len(Alphabet)])
			if len(code) == Length {
				break
			}
		}
	}
	return string(code), nil
}

// Normalize uppercases and trims a user-supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether a normalized code is acceptable for a join
// attempt.
func ValidJoinCode(code string) bool {
	return joinCodeRe.MatchString(code)
}
