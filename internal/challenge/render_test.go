package challenge_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/predeactor/captchad/internal/challenge"
	"github.com/predeactor/captchad/internal/domain"
)

func TestPlainRenderer(t *testing.T) {
	r, _, err := challenge.ForVariant(domain.VariantPlain)
	require.NoError(t, err)

	a, err := r.Render("AB12CD34", "Red Gang")
	require.NoError(t, err)

	require.Nil(t, a.Image)
	require.Contains(t, a.Text, "Red Gang")
	require.Contains(t, a.Text, challenge.Display("AB12CD34"))
	// The raw code must never appear without separators.
	require.NotContains(t, a.Text, "AB12CD34")
	require.Contains(t, a.Text, "​")
}

func TestImageRenderer(t *testing.T) {
	for _, variant := range []domain.Variant{domain.VariantImage, domain.VariantSimple} {
		t.Run(string(variant), func(t *testing.T) {
			r, _, err := challenge.ForVariant(variant)
			require.NoError(t, err)

			a, err := r.Render("MM00PP11", "Red Gang")
			require.NoError(t, err)

			require.NotEmpty(t, a.Image)
			require.Equal(t, "captcha.png", a.ImageName)
			// The caption must not leak the code.
			require.False(t, strings.Contains(a.Text, "MM00PP11"))

			// Same code, same artifact.
			again, err := r.Render("MM00PP11", "Red Gang")
			require.NoError(t, err)
			require.Equal(t, a.Image, again.Image)

			// Different code, different artifact.
			other, err := r.Render("MM00PP12", "Red Gang")
			require.NoError(t, err)
			require.NotEqual(t, a.Image, other.Image)
		})
	}
}
