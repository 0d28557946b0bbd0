package control

import "strings"

// ClassifyError buckets an error for circuit accounting by message substring.
func ClassifyError(err error) string {
	if err == nil {
		return "unknown"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "telegram", "commander"):
		return "command_source_api"
	case containsAny(msg, "provider", "completion", "model"):
		return "provider_api"
	case containsAny(msg, "sqlite", "database"):
		return "db"
	default:
		return "unknown"
	}
}

// PollBackoffSeconds computes capped exponential backoff for consecutive
// polling failures.
func PollBackoffSeconds(consecutiveFailures int) int {
	if consecutiveFailures <= 0 {
		return 0
	}
	seconds := 1 << (consecutiveFailures - 1)
	if seconds > 30 {
		return 30
	}
	return seconds
}

func containsAny(s string, parts ...string) bool {
	for _, p := range parts {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}
