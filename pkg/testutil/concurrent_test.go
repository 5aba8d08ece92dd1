package testutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTaken = errors.New("taken")

func TestRunConcurrent(t *testing.T) {
	t.Run("splits expected from other errors", func(t *testing.T) {
		res := RunConcurrent(30, errTaken, func(idx int) error {
			switch idx % 3 {
			case 0:
				return nil
			case 1:
				return fmt.Errorf("slot %d: %w", idx, errTaken)
			default:
				return errors.New("other")
			}
		})

		assert.Equal(t, int32(10), res.Successes)
		assert.Equal(t, int32(10), res.Expected)
		assert.Equal(t, int32(10), res.Errors)
		assert.Equal(t, int32(30), res.Total())
	})

	t.Run("nil expected counts every error alike", func(t *testing.T) {
		res := RunConcurrent(4, nil, func(idx int) error {
			if idx%2 == 0 {
				return errTaken
			}
			return nil
		})

		assert.Equal(t, int32(2), res.Successes)
		assert.Zero(t, res.Expected)
		assert.Equal(t, int32(2), res.Errors)
	})
}
