package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinels_AreDistinct(t *testing.T) {
	all := []error{
		ErrorNotFound, ErrorInternal, ErrorUnauthorized, ErrVersionConflict,
		ErrValidation, ErrIntegrityGuard, ErrStorage, ErrInvalidToken, ErrTokenExpired,
	}
	for i := range all {
		for j := range all {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(all[i], all[j]), "%v must not match %v", all[i], all[j])
		}
	}
}

func TestSentinels_SurviveWrapping(t *testing.T) {
	err := fmt.Errorf("push: %w", fmt.Errorf("tx: %w", ErrStorage))
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrValidation)
}
