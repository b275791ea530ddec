// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stevelorenz/build-vsf/common"
)

// Backoff configures how a loop waits for traffic. After a receive
// returns nothing the loop pauses ShortInterval up to MaxShortTries times
// in a row, then sleeps LongInterval after every further empty receive.
// MaxShortTries equal to zero means busy polling.
type Backoff struct {
	MaxShortTries int
	ShortInterval time.Duration
	LongInterval  time.Duration
}

// ParseBackoff parses "tries,short_us,long_us".
func ParseBackoff(s string) (Backoff, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return Backoff{}, common.WrapWithNFError(nil, "polling parameters must be tries,short_us,long_us: "+s, common.BadArgument)
	}
	var v [3]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Backoff{}, common.WrapWithNFError(err, "bad polling parameter "+f, common.BadArgument)
		}
		v[i] = n
	}
	b := Backoff{
		MaxShortTries: v[0],
		ShortInterval: time.Duration(v[1]) * time.Microsecond,
		LongInterval:  time.Duration(v[2]) * time.Microsecond,
	}
	return b, b.Validate()
}

// Validate checks that all values are not negative.
func (b Backoff) Validate() error {
	if b.MaxShortTries < 0 || b.ShortInterval < 0 || b.LongInterval < 0 {
		return common.WrapWithNFError(nil, fmt.Sprintf("negative polling parameter in %+v", b), common.BadArgument)
	}
	return nil
}

// Action is what a loop does after a receive.
type Action int

// Actions of PollState.Next.
const (
	ActionProcess Action = iota
	ActionBusyPoll
	ActionShortPause
	ActionLongSleep
)

// Phase is state of a polled port.
type Phase int

// Port phases.
const (
	Active Phase = iota
	ShortBackoff
	LongSleep
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "ACTIVE"
	case ShortBackoff:
		return "SHORT_BACKOFF"
	case LongSleep:
		return "LONG_SLEEP"
	}
	return "UNKNOWN"
}

// PollState is backoff state of one port.
type PollState struct {
	Tries int
	phase Phase
}

// Next moves the state after a receive of received frames and returns
// the action the loop has to take.
func (s *PollState) Next(b Backoff, received int) Action {
	if received > 0 {
		s.Tries = 0
		s.phase = Active
		return ActionProcess
	}
	if b.MaxShortTries == 0 {
		s.phase = Active
		return ActionBusyPoll
	}
	if s.Tries < b.MaxShortTries {
		s.Tries++
		s.phase = ShortBackoff
		return ActionShortPause
	}
	s.phase = LongSleep
	return ActionLongSleep
}

// Phase returns phase reached by the last Next.
func (s *PollState) Phase() Phase {
	return s.phase
}

// Sleeper performs waits of the backoff automaton.
type Sleeper interface {
	// Pause waits without yielding the CPU.
	Pause(d time.Duration)
	// Sleep suspends the calling thread.
	Sleep(d time.Duration)
}

type systemSleeper struct{}

func (systemSleeper) Pause(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

func (systemSleeper) Sleep(d time.Duration) {
	time.Sleep(d)
}

// wait performs action a using s.
func wait(s Sleeper, b Backoff, a Action) {
	switch a {
	case ActionShortPause:
		s.Pause(b.ShortInterval)
	case ActionLongSleep:
		s.Sleep(b.LongInterval)
	}
}
