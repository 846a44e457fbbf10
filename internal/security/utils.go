package security

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	dangerousFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	characterIDPattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)
	sessionIDPattern       = regexp.MustCompile(`^session_[a-f0-9]{12}$`)
)

// HashString returns the hex SHA-256 digest of text.
func HashString(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SanitizeFilename strips path-hostile characters from a filename.
func SanitizeFilename(filename string) string {
	safe := dangerousFilenameChars.ReplaceAllString(filename, "_")
	safe = strings.Trim(safe, ". ")
	if len(safe) > 100 {
		safe = safe[:100]
	}
	return safe
}

// ValidCharacterID reports whether id is a well-formed character id.
func ValidCharacterID(id string) bool {
	return characterIDPattern.MatchString(id)
}

// ValidSessionID reports whether id is a well-formed session id.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
