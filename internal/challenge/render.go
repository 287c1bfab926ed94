package challenge

import (
	"fmt"
	"strings"
)

// escapeChar is the zero-width space inserted between the characters of a
// plain challenge, so the displayed code cannot be copy-pasted back verbatim.
const escapeChar = "​"

// Artifact is what gets presented to the member for one challenge round.
type Artifact struct {
	// Text is the message body or image caption.
	Text string
	// Image is the rendered PNG, nil for the plain variant.
	Image []byte
	// ImageName is the attachment filename when Image is set.
	ImageName string
}

// Renderer turns a code into a presentable artifact. Rendering the same code
// twice yields the same artifact; a reload always goes through a fresh code.
type Renderer interface {
	Render(code Code, guildName string) (Artifact, error)
}

// displayForm is the obfuscated text shown for a plain challenge.
func displayForm(code Code) string {
	return strings.Join(strings.Split(string(code), ""), escapeChar)
}

type plainRenderer struct{}

func (plainRenderer) Render(code Code, guildName string) (Artifact, error) {
	text := fmt.Sprintf(
		"%s Verification System\n"+
			"Please return me the following code:\n%s\n"+
			"Do not copy and paste the code.",
		guildName, displayForm(code),
	)
	return Artifact{Text: text}, nil
}

type imageRenderer struct {
	// noise draws distortion strokes over the glyphs. Disabled for the
	// simplified variant.
	noise bool
}

func (r imageRenderer) Render(code Code, guildName string) (Artifact, error) {
	img, err := rasterize(code, r.noise)
	if err != nil {
		return Artifact{}, fmt.Errorf("render image: %w", err)
	}

	text := fmt.Sprintf(
		"%s Verification System\n"+
			"Please send me back the code you're seeing in this image.\n"+
			"Note: the code is made of %d characters and has no space. "+
			"React with the reload marker to get another image.",
		guildName, CodeLength,
	)
	return Artifact{Text: text, Image: img, ImageName: "captcha.png"}, nil
}
