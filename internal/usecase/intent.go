package usecase

import "strings"

// actionKeywords route a message to the workflow engine as well as chat.
var actionKeywords = []string{
	"buy",
	"trade",
	"swap",
	"audit",
	"check safety",
	"analyze token",
	"portfolio",
	"balance",
}

// IsActionIntent reports whether message contains any action keyword.
// Matching is a case-insensitive substring test, so "rebalance" matches too.
func IsActionIntent(message string) bool {
	m := strings.ToLower(message)
	for _, k := range actionKeywords {
		if strings.Contains(m, k) {
			return true
		}
	}
	return false
}
