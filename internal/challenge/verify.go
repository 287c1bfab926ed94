package challenge

import "strings"

// Outcome is the result of judging a submission against the expected code.
type Outcome int

const (
	// Incorrect means the submission does not match the code.
	Incorrect Outcome = iota
	// Correct means the submission matches the code.
	Correct
	// CopyPasteRejected means the member echoed the obfuscated display form
	// of a plain challenge instead of retyping the code.
	CopyPasteRejected
)

func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case CopyPasteRejected:
		return "copy_paste_rejected"
	default:
		return "incorrect"
	}
}

// Verifier judges a member's submission for one challenge variant.
type Verifier interface {
	Verify(submission string, expected Code) Outcome
}

// imageVerifier compares the upper-cased submission against the code.
// Used by both image variants.
type imageVerifier struct{}

func (imageVerifier) Verify(submission string, expected Code) Outcome {
	if strings.ToUpper(strings.TrimSpace(submission)) == string(expected) {
		return Correct
	}
	return Incorrect
}

// plainVerifier additionally rejects submissions that still carry the
// separator characters of the display form: the member must retype the code,
// not copy it.
type plainVerifier struct{}

func (plainVerifier) Verify(submission string, expected Code) Outcome {
	submission = strings.TrimSpace(submission)
	if strings.ToUpper(submission) == displayForm(expected) {
		return CopyPasteRejected
	}

	stripped := strings.ReplaceAll(submission, escapeChar, "")
	if strings.ToUpper(stripped) == string(expected) {
		return Correct
	}
	return Incorrect
}
