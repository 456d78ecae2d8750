// Package utils provides small helpers shared by the service entry points.
package utils //nolint:revive // var-naming: utils is an acceptable package name for shared utilities

import "sync"

// MergeErrorChans fans several error channels into one. The output channel is
// closed once every input channel has been closed.
//
// Example:
//
//	merged := MergeErrorChans(httpErrs, schedulerErrs)
//	for err := range merged {
//		log.Error("component failed", logger.ErrorField(err))
//	}
func MergeErrorChans(channels ...<-chan error) <-chan error {
	out := make(chan error)
	var wg sync.WaitGroup

	for _, ch := range channels {
		wg.Add(1)
		go func(c <-chan error) {
			defer wg.Done()
			for err := range c {
				out <- err
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
