package dashboard

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxQueueNameLength bounds accepted queue names.
const MaxQueueNameLength = 50

var queueNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateQueueName reports why name cannot be a queue name, wrapping ErrInvalidQueueName.
func ValidateQueueName(name string) error {
	if reason := queueNameRejection(name); reason != "" {
		return fmt.Errorf("%w: %s", ErrInvalidQueueName, reason)
	}
	return nil
}

func queueNameRejection(name string) string {
	switch {
	case name == "":
		return "empty name"
	case strings.Contains(name, "::"):
		return "contains double colon"
	case len(name) > MaxQueueNameLength:
		return fmt.Sprintf("longer than %d characters", MaxQueueNameLength)
	case !queueNamePattern.MatchString(name):
		return "contains characters outside [a-zA-Z0-9_-]"
	}
	return ""
}
