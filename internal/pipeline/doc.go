// Package pipeline implements the asynchronous inference scheduler. Frames
// are submitted to a bounded pool of reusable inference request slots,
// complete out of order on engine-owned goroutines, and are drained by the
// consumer strictly in submission order.
//
// One mutex/condition-variable pair guards the slot pool, the completion
// buffer, the first captured fault and the performance counters, so that
// completion callbacks, the consumer's wait and the in-order drain all
// observe a consistent view.
package pipeline
