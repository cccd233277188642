/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package automation

import (
	"context"
	"fmt"
)

// UnavailableDiscovery is a Discovery for platforms where no automation
// interop layer has been wired in. Every operation fails with the recorded
// reason. It keeps the server runnable (the protocol surface works, tools
// report the missing capability) without faking connectivity.
type UnavailableDiscovery struct {
	Reason string
}

var _ Discovery = UnavailableDiscovery{}

func (d UnavailableDiscovery) Instances(_ context.Context) ([]InstanceInfo, error) {
	return nil, fmt.Errorf("instance discovery is unavailable: %s", d.Reason)
}

func (d UnavailableDiscovery) Acquire(_ context.Context, pid int32) (Root, error) {
	return nil, fmt.Errorf("cannot acquire automation root for pid %d: %s", pid, d.Reason)
}
