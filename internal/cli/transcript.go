package cli

import "strings"

const blankAudioToken = "[BLANK_AUDIO]"

func isBlankTranscript(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, blankAudioToken)
}

func noSpeechHint() string {
	return "No speech detected. Check that the recording is audible and --language matches the speaker."
}

// sanitizeLanguage normalizes a language code; "auto" and blank let the
// speech API detect the language.
func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "auto" {
		return ""
	}
	return trimmed
}
