package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allSentinels() []error {
	return []error{
		ErrNotConfigured,
		ErrMissingAccountHash,
		ErrMissingImageID,
		ErrFileNotFound,
		ErrFileRead,
		ErrRemoteHTTP,
		ErrRemoteResponse,
		ErrRemoteAPI,
		ErrNoImageID,
		ErrURLBuildFailed,
		ErrInvalidMapping,
		ErrInvalidPreset,
		ErrMappingNotFound,
		ErrPresetNotFound,
		ErrDuplicatePreset,
		ErrPostNotFound,
	}
}

func TestSentinelErrors_ImplementErrorInterface(t *testing.T) {
	for _, err := range allSentinels() {
		assert.NotEmpty(t, err.Error(), "sentinel error should have non-empty message")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := allSentinels()
	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinel errors should be distinct: %q vs %q", sentinels[i], sentinels[j])
		}
	}
}

func TestSentinelErrors_MatchThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("uploading post 42: %w", ErrNoImageID)
	assert.True(t, errors.Is(wrapped, ErrNoImageID))
	assert.False(t, errors.Is(wrapped, ErrURLBuildFailed))
}
