package utils //nolint:revive // var-naming: utils is an acceptable package name for shared utilities

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeErrorChans(t *testing.T) {
	ch1 := make(chan error, 1)
	ch2 := make(chan error, 1)
	merged := MergeErrorChans(ch1, ch2)

	ch1 <- errors.New("http server stopped")
	ch2 <- errors.New("scheduler stopped")
	close(ch1)
	close(ch2)

	var received []string
	timeout := time.After(time.Second)
	for {
		select {
		case err, ok := <-merged:
			if !ok {
				assert.ElementsMatch(t, []string{"http server stopped", "scheduler stopped"}, received)
				return
			}
			received = append(received, err.Error())
		case <-timeout:
			require.FailNow(t, "timeout waiting for merged errors")
		}
	}
}

func TestMergeErrorChansEmpty(t *testing.T) {
	merged := MergeErrorChans()
	select {
	case _, ok := <-merged:
		assert.False(t, ok)
	case <-time.After(time.Second):
		require.FailNow(t, "merged channel was not closed")
	}
}
