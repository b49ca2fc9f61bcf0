package turn

import (
	"strings"
)

// ClassifyProviderError maps a raw provider or transport error onto a short
// user-facing message. It never panics and always returns displayable text.
func ClassifyProviderError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, "api key not valid", "api_key_invalid", "unauthorized", "permission denied", "status 401", "status 403"):
		return "The API key is invalid or unauthorized. Check your credentials."
	case containsAny(lower, "is not found", "model not found", "not_found", "status 404"):
		return "The requested model was not found. It may be retired or misspelled."
	case containsAny(lower, "quota", "resource_exhausted", "rate limit", "status 429"):
		return "The request quota has been exhausted. Try again later."
	case containsAny(lower, "location is not supported", "region", "failed_precondition"):
		return "The service is not available in your region."
	case containsAny(lower, "safety", "blocked", "prohibited_content"):
		return "The response was blocked by the provider's safety policy."
	default:
		return "Provider error: " + msg
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
