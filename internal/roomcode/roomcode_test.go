package roomcode_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handraise/internal/roomcode"
)

func TestGenerateProducesOnlyAlphabetChars(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := roomcode.Generate()
		require.NoError(t, err)
		require.Len(t, code, roomcode.Length)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(roomcode.Alphabet, c),
				"code %q contains %q which is outside the alphabet", code, c)
		}
	}
}

func TestGenerateDrawsCharactersUniformly(t *testing.T) {
	// 240000 codes give 960000 character draws, 40000 expected per
	// alphabet character with a standard deviation of about 196. Reducing
	// random bytes modulo 24 without rejection would pull the last eight
	// alphabet characters down to about 37500 draws, more than 12 standard
	// deviations below the 3% band checked here; a uniform generator sits
	// 6 standard deviations inside it.
	counts := make(map[rune]int, len(roomcode.Alphabet))
	for i := 0; i < 240000; i++ {
		code, err := roomcode.Generate()
		require.NoError(t, err)
		for _, c := range code {
			counts[c]++
		}
	}

	const expected = 240000 * roomcode.Length / len(roomcode.Alphabet)
	for _, c := range roomcode.Alphabet {
		assert.Greater(t, counts[c], expected*97/100, "character %q drawn too rarely", c)
		assert.Less(t, counts[c], expected*103/100, "character %q drawn too often", c)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "A3F7", roomcode.Normalize("a3f7"))
	assert.Equal(t, "A3F7", roomcode.Normalize("  a3F7 "))
}

func TestValidJoinCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"A3F7", true},
		{"2346", true},
		{"XYZ0", true}, // join side tolerates characters outside the generation alphabet
		{"A3F", false},
		{"A3F!", false},
		{"A3F77", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, roomcode.ValidJoinCode(tt.code), "code %q", tt.code)
	}
}

func TestJoinCodeAcceptanceAfterNormalize(t *testing.T) {
	assert.True(t, roomcode.ValidJoinCode(roomcode.Normalize("a3f7")))
	assert.False(t, roomcode.ValidJoinCode(roomcode.Normalize("a3f")))
	assert.False(t, roomcode.ValidJoinCode(roomcode.Normalize("a3f!")))
}
