package challenge

import (
	"github.com/predeactor/captchad/internal/domain"
	"github.com/predeactor/captchad/internal/errors"
)

// ForVariant resolves the renderer and verifier for a configured variant.
// Resolution happens once at session start; the pair is fixed for the
// session's lifetime.
func ForVariant(v domain.Variant) (Renderer, Verifier, error) {
	switch v {
	case domain.VariantPlain:
		return plainRenderer{}, plainVerifier{}, nil
	case domain.VariantImage:
		return imageRenderer{noise: true}, imageVerifier{}, nil
	case domain.VariantSimple:
		return imageRenderer{noise: false}, imageVerifier{}, nil
	default:
		return nil, nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("unknown challenge variant %q", v))
	}
}

// Display returns the obfuscated display form of a plain challenge code.
// Exposed for tests and platform adapters that need to echo the challenge.
func Display(code Code) string {
	return displayForm(code)
}
