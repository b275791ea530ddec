// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import "time"

// DrainTimer fires at most once per interval.
type DrainTimer struct {
	interval time.Duration
	last     time.Time
}

// NewDrainTimer creates timer which is due at the first check.
func NewDrainTimer(interval time.Duration) *DrainTimer {
	return &DrainTimer{interval: interval}
}

// Due reports whether interval elapsed since the last time Due returned
// true, and if so restarts the interval at now.
func (d *DrainTimer) Due(now time.Time) bool {
	if !d.last.IsZero() && now.Sub(d.last) < d.interval {
		return false
	}
	d.last = now
	return true
}
