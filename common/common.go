// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package common is used for combining common functions from other packages
// of the forwarder: logging, error codes and CPU list parsing.
package common

import (
	"runtime"
	"strconv"
)

// MaxPorts is the highest number of ports which can be described by a port mask.
const MaxPorts = 32

// GetDefaultCPUs returns default core list {0, 1, ..., cpuNumber-1}
func GetDefaultCPUs(cpuNumber uint) []uint {
	cpus := make([]uint, cpuNumber, cpuNumber)
	for i := uint(0); i < cpuNumber; i++ {
		cpus[i] = i
	}
	return cpus
}

// ParseCPUs parses cpu list string like "0,2-3" into array of cpu numbers
// and truncates the list according to given coresNumber.
func ParseCPUs(s string, coresNumber uint) ([]uint, error) {
	nums, err := parseCPUs(s)
	if err != nil {
		return nil, err
	}
	nums = removeDuplicates(nums)

	numCPU := uint(runtime.NumCPU())
	for _, cpu := range nums {
		if cpu >= numCPU {
			return []uint{}, WrapWithNFError(nil, "requested cpu exceeds maximum cores number on machine", MaxCPUExceedErr)
		}
	}
	if len(nums) > int(coresNumber) {
		return nums[:coresNumber], nil
	}
	return nums, nil
}

func parseCPUs(s string) ([]uint, error) {
	nums := make([]uint, 0, 8)
	if s == "" {
		return nums, nil
	}
	startRange := -1
	for i, j := 0, 0; i <= len(s); i++ {
		if i != len(s) && s[i] == '-' {
			v, err := strconv.Atoi(s[j:i])
			if err != nil {
				return nums, WrapWithNFError(err, "failed to parse cpu list", ParseCPUListErr)
			}
			startRange = v
			j = i + 1
		}

		if i == len(s) || s[i] == ',' {
			r, err := strconv.Atoi(s[j:i])
			if err != nil {
				return nums, WrapWithNFError(err, "failed to parse cpu list", ParseCPUListErr)
			}
			if startRange != -1 {
				if startRange > r {
					return nums, WrapWithNFError(nil, "CPU range is invalid, min should not exceed max", InvalidCPURangeErr)
				}
				for k := startRange; k <= r; k++ {
					nums = append(nums, uint(k))
				}
				startRange = -1
			} else {
				nums = append(nums, uint(r))
			}
			j = i + 1
		}
	}
	return nums, nil
}

func removeDuplicates(array []uint) []uint {
	result := []uint{}
	seen := map[uint]bool{}
	for _, val := range array {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}

// ParsePortMask returns port identifiers enabled in a hexadecimal mask
// such as "0x3" or "3", in increasing order.
func ParsePortMask(s string) ([]uint16, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	mask, err := strconv.ParseUint(s, 16, MaxPorts)
	if err != nil {
		return nil, WrapWithNFError(err, "invalid port mask", BadArgument)
	}
	if mask == 0 {
		return nil, WrapWithNFError(nil, "port mask enables no ports", BadArgument)
	}
	ports := make([]uint16, 0, 2)
	for i := uint16(0); i < MaxPorts; i++ {
		if mask&(1<<i) != 0 {
			ports = append(ports, i)
		}
	}
	return ports, nil
}
