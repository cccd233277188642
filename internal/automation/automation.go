/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

/*
Package automation declares the capability surface of the out-of-process IDE
automation interface the bridge talks to.

Nothing in this package performs automation itself. A Root is an opaque,
non-owning reference to one connected IDE instance; it stays valid only while
the remote process is alive and verifiable, and the instance registry is
responsible for finding out when it no longer is. Implementations wrap the
platform interop layer (on Windows, the COM automation model of the host
process) and are supplied to the server at startup; tests use the fakes in
the automationtest subpackage.

The foreign interface has single-threaded affinity: a Root and everything
reachable from it must never be entered concurrently. Callers do not enforce
that here; the registry binds every Root to a serialized executor and all
access goes through it.
*/
package automation

import "context"

// DebugMode mirrors the debugger mode reported by the host process.
type DebugMode string

const (
	ModeDesign DebugMode = "Design" // not debugging
	ModeRun    DebugMode = "Running"
	ModeBreak  DebugMode = "Break" // paused; the only mode where inspection is meaningful
)

// VariableScope distinguishes where a variable was found.
type VariableScope string

const (
	ScopeLocal     VariableScope = "Local"
	ScopeParameter VariableScope = "Parameter"
)

// Variable is one entry from the debugger's locals or parameters window.
type Variable struct {
	Name  string        `json:"name"`
	Value string        `json:"value"`
	Type  string        `json:"type"`
	Scope VariableScope `json:"scope"`
}

// StackFrame is one frame of the paused call stack.
type StackFrame struct {
	Method string `json:"method"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Module string `json:"module"`
}

// ObjectInfo is the expanded rendering of a single variable.
type ObjectInfo struct {
	Variable
	Members []Variable `json:"members,omitempty"`
}

// Project is a project within the open solution.
type Project struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Kind string `json:"kind,omitempty"`
}

// BuildResult is the outcome of a completed solution build.
type BuildResult struct {
	Success    bool     `json:"success"`
	Errors     int      `json:"errors"`
	Warnings   int      `json:"warnings"`
	DurationMs int64    `json:"durationMs"`
	Output     []string `json:"output,omitempty"`
}

// Root is a non-owning reference to the automation entry point of one
// connected IDE instance.
type Root interface {
	// The OS process id of the IDE instance this root belongs to.
	ProcessID() int32

	// A cheap liveness probe. An error means the instance is gone or
	// unresponsive and the reference must be discarded.
	Ping(ctx context.Context) error

	Build() BuildManager
	Debugger() Debugger
	Solution() Solution
}

// BuildManager drives solution builds. Builds run asynchronously in the host;
// callers start one and poll until it settles.
type BuildManager interface {
	Start(ctx context.Context, configuration string) error
	InProgress(ctx context.Context) (bool, error)
	Result(ctx context.Context) (BuildResult, error)
}

// Debugger exposes the debugging sub-capability of the automation root.
type Debugger interface {
	// The mode the host debugger is currently in. This is how break entry is
	// observed: the host transitions to Break on its own when a breakpoint or
	// exception is hit, it is never commanded from this side.
	Mode(ctx context.Context) (DebugMode, error)

	// Starts debugging. An empty project name starts the startup project.
	// Callers are responsible for checking project existence beforehand.
	Start(ctx context.Context, projectName string) error

	Stop(ctx context.Context) error

	StepInto(ctx context.Context) error
	StepOver(ctx context.Context) error
	StepOut(ctx context.Context) error

	// Registers a line breakpoint in the host.
	AddBreakpoint(ctx context.Context, file string, line int) error

	// The source position the debugger is paused at. Only meaningful in Break.
	CurrentLocation(ctx context.Context) (file string, line int, err error)

	// Locals and parameters of the top stack frame.
	LocalVariables(ctx context.Context) ([]Variable, error)

	// Locals and parameters of the given stack frame (0 = top).
	FrameVariables(ctx context.Context, frameIndex int) ([]Variable, error)

	CallStack(ctx context.Context) ([]StackFrame, error)

	SetVariable(ctx context.Context, name string, value string) error

	Inspect(ctx context.Context, name string) (ObjectInfo, error)
}

// Solution exposes the solution sub-capability of the automation root.
type Solution interface {
	FullName(ctx context.Context) (string, error)
	Open(ctx context.Context, path string) error
	Projects(ctx context.Context) ([]Project, error)
}

// InstanceInfo describes one connectable IDE instance.
type InstanceInfo struct {
	ProcessID    int32  `json:"processId"`
	SolutionPath string `json:"solutionPath,omitempty"`
	Version      string `json:"version,omitempty"`
}

// Discovery enumerates connectable automation roots and acquires references
// to them. Acquire makes exactly one attempt; retrying is a caller decision.
type Discovery interface {
	Instances(ctx context.Context) ([]InstanceInfo, error)
	Acquire(ctx context.Context, pid int32) (Root, error)
}
