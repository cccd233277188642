/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package process provides read-only queries about operating system processes.
package process

import (
	"errors"
	"fmt"

	ps "github.com/shirou/gopsutil/v4/process"
)

var (
	// Essentially the same as ps.ErrorProcessNotRunning, but we do not want to
	// expose the ps package outside of this package.
	ErrProcessNotFound = errors.New("process does not exist")
)

// Querier answers liveness and identity questions about processes.
// It exists as an interface so that callers validating process ids can be
// tested without depending on the state of the host machine.
type Querier interface {
	// Reports whether a process with the given PID is currently running.
	IsRunning(pid int32) bool

	// Returns the executable name of the process with the given PID.
	// Returns ErrProcessNotFound if there is no such process.
	Name(pid int32) (string, error)
}

// OSQuerier is the Querier backed by the real operating system.
type OSQuerier struct{}

var _ Querier = OSQuerier{}

func (OSQuerier) IsRunning(pid int32) bool {
	running, err := ps.PidExists(pid)
	return err == nil && running
}

func (OSQuerier) Name(pid int32) (string, error) {
	proc, err := ps.NewProcess(pid)
	if err != nil {
		if errors.Is(err, ps.ErrorProcessNotRunning) {
			return "", fmt.Errorf("process with pid %d: %w", pid, ErrProcessNotFound)
		}
		return "", err
	}

	name, err := proc.Name()
	if err != nil {
		return "", err
	}
	return name, nil
}
