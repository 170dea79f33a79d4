package session

import (
	"fmt"
	"regexp"
)

// Session names become on-disk directory names under the twchat data dir,
// so the charset is kept strict: a lowercase alphanumeric start, then
// lowercase alphanumerics, hyphens or underscores, 32 chars total at most.
var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// ValidateName checks that name is usable as a twchat session name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: lowercase letters, digits, - and _ only, starting with a letter or digit, at most 32 characters", name)
	}
	return nil
}
