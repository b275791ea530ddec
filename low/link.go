// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stevelorenz/build-vsf/common"
)

var (
	linkCheckInterval = 100 * time.Millisecond
	linkCheckAttempts = 90
)

// CheckLinkStatus waits up to 9 seconds until all ports report link up.
// Waiting is abandoned when quit returns true. It prints state of every
// port and returns true if all links are up.
func CheckLinkStatus(ports []Port, quit func() bool) bool {
	common.LogInfo(common.Initialization, "Checking link status")
	allUp := false
	for attempt := 0; attempt <= linkCheckAttempts; attempt++ {
		if quit != nil && quit() {
			return false
		}
		allUp = true
		for _, port := range ports {
			if !port.LinkUp() {
				allUp = false
				break
			}
		}
		if allUp || attempt == linkCheckAttempts {
			break
		}
		time.Sleep(linkCheckInterval)
	}
	for _, port := range ports {
		if port.LinkUp() {
			common.LogInfo(common.Initialization, "Port", port.ID(), "("+port.Name()+") Link Up")
		} else {
			common.LogWarning(common.Initialization, "Port", port.ID(), "("+port.Name()+") Link Down")
		}
	}
	return allUp
}

// SetAffinity locks calling goroutine to its OS thread and binds the
// thread to CPU coreID.
func SetAffinity(coreID int) error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Set(coreID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return common.WrapWithNFError(err, "cannot bind thread to CPU", common.SetAffinityErr)
	}
	return nil
}
