// File: core/remoting/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine counters, exposed as an immutable snapshot.

package remoting

import "sync/atomic"

type counters struct {
	opened      atomic.Uint64
	replied     atomic.Uint64
	failed      atomic.Uint64
	cancelled   atomic.Uint64
	forceClosed atomic.Uint64
	late        atomic.Uint64
}

// Counters is a point-in-time snapshot of one context's activity.
type Counters struct {
	Opened      uint64 // requests registered and transmitted
	Replied     uint64 // completed with a reply value
	Failed      uint64 // completed with a remote-execution failure
	Cancelled   uint64 // completed by cancel acknowledgment
	ForceClosed uint64 // failed by context teardown
	LateEvents  uint64 // inbound events dropped as duplicate or unknown
}

func (c *counters) snapshot() Counters {
	return Counters{
		Opened:      c.opened.Load(),
		Replied:     c.replied.Load(),
		Failed:      c.failed.Load(),
		Cancelled:   c.cancelled.Load(),
		ForceClosed: c.forceClosed.Load(),
		LateEvents:  c.late.Load(),
	}
}
