/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package errdefs

import "fmt"

// FatalFault marks a condition the process must not attempt to survive
// (corrupted bridge state, resource exhaustion). It is raised as a panic
// value, never returned as an error, so no errors.Is/As boundary can
// accidentally match and swallow it.
type FatalFault struct {
	Reason string
}

func (f *FatalFault) String() string {
	return fmt.Sprintf("fatal fault: %s", f.Reason)
}

// Fatal raises a fatal fault. It never returns.
func Fatal(format string, args ...any) {
	panic(&FatalFault{Reason: fmt.Sprintf(format, args...)})
}

// IsFatalPanic reports whether a recovered panic value is a fatal fault.
// Recovery boundaries must re-panic such values so the process terminates.
func IsFatalPanic(panicVal any) bool {
	_, fatal := panicVal.(*FatalFault)
	return fatal
}
