/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package resiliency

import (
	"fmt"
	"runtime/debug"

	"github.com/go-logr/logr"
)

// PanicError coerces a recovered panic value into an error, logging it
// together with the stack of the recovering goroutine. Callers decide how the
// resulting error is classified.
func PanicError(panicVal any, log logr.Logger) error {
	err, isError := panicVal.(error)
	if !isError {
		err = fmt.Errorf("panic: %v", panicVal)
	}

	log.Error(err, "Recovered from a panicking tool handler", "stack", string(debug.Stack()))

	return err
}
