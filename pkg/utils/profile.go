package utils

import (
	"regexp"
	"strings"
)

const (
	maxProfileRunes = 64
	DefaultProfile  = "default"
)

// Anything but letters, digits, dot, dash and underscore becomes a single underscore
var profileInvalidRun = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// ProfileDirName turns a state profile name into a single safe directory component.
// Leading dots are stripped so a profile can never name a hidden or parent directory.
func ProfileDirName(profile string) string {
	name := profileInvalidRun.ReplaceAllString(strings.TrimSpace(profile), "_")
	name = strings.Trim(name, "_.-")
	name = Truncate(name, maxProfileRunes)
	name = strings.TrimRight(name, "_.-")
	if name == "" {
		return DefaultProfile
	}
	return name
}
