package challenge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predeactor/captchad/internal/challenge"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[challenge.Code]int)

	for i := 0; i < 200; i++ {
		code := challenge.GenerateCode()
		require.Len(t, string(code), challenge.CodeLength)
		for _, c := range string(code) {
			ok := (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
			require.Truef(t, ok, "character %q outside the code alphabet", c)
		}
		seen[code]++
	}

	// 200 draws from a 36^8 space colliding would mean a broken source.
	for code, n := range seen {
		assert.Equalf(t, 1, n, "code %s generated more than once", code)
	}
}
