package realtime

import (
	"fmt"
	"strings"
)

// UpdateKey is the event key for edits and deletions in a chat scope
// (a conversation or a channel).
func UpdateKey(scopeID string) string {
	return fmt.Sprintf("chat:%s:messages:update", scopeID)
}

// NewKey is the event key for messages added to a chat scope.
func NewKey(scopeID string) string {
	return fmt.Sprintf("chat:%s:messages:new", scopeID)
}

// kind labels a key for metrics.
func kind(key string) string {
	switch {
	case strings.HasSuffix(key, ":messages:update"):
		return "update"
	case strings.HasSuffix(key, ":messages:new"):
		return "new"
	}
	return "other"
}
