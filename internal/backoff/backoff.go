// Package backoff computes the S-curve retry delay shared by the store's
// list_failed_ready query and the scheduler's dispatch loop.
package backoff

import (
	"math"
	"time"
)

// Delay returns the wait interval after a FAILED row's retryCount-th
// failure before it becomes eligible for another attempt:
//
//	delay(r) = 5 + (600-5) / (1 + e^(-1*(r-5)))
//
// ~9s at r=0, ~16s at r=1, ~33s at r=2, ~76s at r=3, ~165s at r=4,
// ~300s at r=5, asymptoting toward 600s for large r.
func Delay(retryCount int) time.Duration {
	r := float64(retryCount)
	seconds := 5 + (600-5)/(1+math.Exp(-1*(r-5)))
	return time.Duration(seconds * float64(time.Second))
}
