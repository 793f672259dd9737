package repos

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var mappingIDPattern = regexp.MustCompile(`^map_[0-9a-f]{8}$`)

// NewMappingID returns a random "map_" + 8 hex chars ID.
func NewMappingID() string {
	return "map_" + shortID()
}

// NewPresetID returns a random "preset_" + 8 hex chars ID.
func NewPresetID() string {
	return "preset_" + shortID()
}

// ValidMappingID reports whether id has the mapping ID shape.
func ValidMappingID(id string) bool {
	return mappingIDPattern.MatchString(id)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// MaskToken hides all but the last four characters of a token.
func MaskToken(token string) string {
	if len(token) <= 4 {
		if token == "" {
			return ""
		}

		return "****"
	}

	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
