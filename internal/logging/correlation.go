package logging

import (
	"strconv"
	"sync/atomic"
	"time"
)

var correlationCounter atomic.Uint64

// NewCorrelationID returns an id of the form corr_<unix_ms>_<n> used to trace one
// operation across the coordinator and the watcher boundary.
func NewCorrelationID() string {
	counter := correlationCounter.Add(1) - 1
	return "corr_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + strconv.FormatUint(counter%10000, 10)
}
