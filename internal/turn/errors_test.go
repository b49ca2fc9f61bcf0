package turn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyProviderError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"bad key", errors.New("API key not valid. Please pass a valid API key."),
			"The API key is invalid or unauthorized. Check your credentials."},
		{"http 403", errors.New("api error (status 403): forbidden"),
			"The API key is invalid or unauthorized. Check your credentials."},
		{"missing model", errors.New("models/gemini-1.0-ultra is not found for API version v1beta"),
			"The requested model was not found. It may be retired or misspelled."},
		{"quota", errors.New("RESOURCE_EXHAUSTED: quota exceeded for quota metric"),
			"The request quota has been exhausted. Try again later."},
		{"region", errors.New("User location is not supported for the API use"),
			"The service is not available in your region."},
		{"safety", errors.New("candidate was blocked due to SAFETY"),
			"The response was blocked by the provider's safety policy."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyProviderError(tc.err))
		})
	}
}

func TestClassifyProviderErrorFallback(t *testing.T) {
	got := ClassifyProviderError(errors.New("something odd happened"))
	assert.Equal(t, "Provider error: something odd happened", got)
}

func TestClassifyProviderErrorNil(t *testing.T) {
	assert.Empty(t, ClassifyProviderError(nil))
}
