package challenge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/predeactor/captchad/internal/challenge"
	"github.com/predeactor/captchad/internal/domain"
)

func TestPlainVerifier(t *testing.T) {
	const code = challenge.Code("AB12CD34")

	_, v, err := challenge.ForVariant(domain.VariantPlain)
	require.NoError(t, err)

	tests := map[string]struct {
		submission string
		want       challenge.Outcome
	}{
		"display form echoed back is rejected as copy-paste": {
			submission: challenge.Display(code),
			want:       challenge.CopyPasteRejected,
		},
		"retyped code in lower case is correct": {
			submission: "ab12cd34",
			want:       challenge.Correct,
		},
		"retyped code in upper case is correct": {
			submission: "AB12CD34",
			want:       challenge.Correct,
		},
		"wrong code is incorrect": {
			submission: "AB12CD35",
			want:       challenge.Incorrect,
		},
		"empty submission is incorrect": {
			submission: "",
			want:       challenge.Incorrect,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, v.Verify(tt.submission, code))
		})
	}
}

func TestImageVerifier(t *testing.T) {
	const code = challenge.Code("MM00PP11")

	for _, variant := range []domain.Variant{domain.VariantImage, domain.VariantSimple} {
		_, v, err := challenge.ForVariant(variant)
		require.NoError(t, err)

		require.Equal(t, challenge.Correct, v.Verify("MM00PP11", code))
		require.Equal(t, challenge.Correct, v.Verify("mm00pp11", code))
		require.Equal(t, challenge.Incorrect, v.Verify("MM00PP12", code))
	}
}

func TestForVariant_Unknown(t *testing.T) {
	_, _, err := challenge.ForVariant(domain.Variant("hologram"))
	require.Error(t, err)
}
