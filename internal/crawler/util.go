package crawler

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeFilename maps an identifier (control numbers contain "/") to a file stem.
func SafeFilename(id string) string {
	name := strings.Trim(invalidFilenameChars.ReplaceAllString(id, "_"), "_.")
	if name == "" {
		return hashString(id)[:16]
	}
	return name
}

func hashString(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
