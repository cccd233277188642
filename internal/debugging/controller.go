/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

/*
Package debugging implements the debug session state machine layered on a
registry-resolved automation handle.

The session is in exactly one of three states: Design (not debugging),
Running, or Break. Break is the only state in which inspection is meaningful.
The controller tracks the state it last observed and uses it to gate
operations WITHOUT calling the foreign interface: stepping or modifying a
variable outside Break fails with a state error before any foreign call is
attempted, and inspection queries outside Break return empty collections
rather than errors (they are read-only, so the contract is softer).

The transition from Running to Break is observed, never commanded: the host
debugger pauses itself when a breakpoint or exception is hit, and the
controller notices on the next operation that reads the mode.
*/
package debugging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/automation"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/errdefs"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/instances"
)

// errNoLiveHandle is the cause recorded in bridge errors when an operation
// needs a connected instance and none can be resolved.
var errNoLiveHandle = errors.New("no live automation handle; connect to an instance first")

// StateInfo is the debug state payload returned to clients.
type StateInfo struct {
	IsDebugging bool   `json:"isDebugging"`
	IsPaused    bool   `json:"isPaused"`
	Mode        string `json:"mode"`
	CurrentFile string `json:"currentFile,omitempty"`
	CurrentLine int    `json:"currentLine,omitempty"`
}

// Breakpoint is the session's record of one registered breakpoint.
//
// Condition is carried and echoed back, but it is NOT applied to the foreign
// breakpoint: the foreign interface binding offers no way to attach one. The
// controller logs a warning whenever a condition is supplied so the gap is
// visible rather than silent.
type Breakpoint struct {
	ID        string `json:"id"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Condition string `json:"condition,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// ConnectionInfo is the payload returned by a successful instance connection.
type ConnectionInfo struct {
	Instance  automation.InstanceInfo `json:"instance"`
	SessionID string                  `json:"sessionId"`
	Connected bool                    `json:"connected"`
	Timestamp time.Time               `json:"timestamp"`
}

type StepKind string

const (
	StepInto StepKind = "step_into"
	StepOver StepKind = "step_over"
	StepOut  StepKind = "step_out"
)

// Controller is the debug session state machine. It owns no foreign objects:
// every foreign call goes through the handle currently resolvable from the
// registry, on that handle's serialized executor, bounded by callTimeout.
type Controller struct {
	registry    *instances.Registry
	callTimeout time.Duration
	log         logr.Logger

	mu          sync.Mutex
	pid         int32
	sessionID   string
	state       automation.DebugMode
	breakpoints []Breakpoint
}

func NewController(registry *instances.Registry, callTimeout time.Duration, log logr.Logger) *Controller {
	return &Controller{
		registry:    registry,
		callTimeout: callTimeout,
		log:         log.WithName("debug-controller"),
		state:       automation.ModeDesign,
	}
}

// Connect binds the session to the IDE instance with the given process id.
func (c *Controller) Connect(ctx context.Context, pid int32) (ConnectionInfo, error) {
	h, err := c.registry.Resolve(ctx, pid)
	if err != nil {
		return ConnectionInfo{}, err
	}
	if h == nil {
		return ConnectionInfo{}, errdefs.NotFound("instance", pid)
	}

	var solutionPath string
	var mode automation.DebugMode
	execErr := c.exec(ctx, h, "connect_instance", func() error {
		var callErr error
		if solutionPath, callErr = h.Root.Solution().FullName(ctx); callErr != nil {
			return callErr
		}
		mode, callErr = h.Root.Debugger().Mode(ctx)
		return callErr
	})
	if execErr != nil {
		return ConnectionInfo{}, execErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pid != pid {
		// Rebinding to a different instance tears the old session down.
		c.breakpoints = nil
	}
	c.pid = pid
	c.sessionID = uuid.NewString()
	c.state = mode

	c.log.Info("Connected to automation instance", "PID", pid, "SessionID", c.sessionID, "Mode", mode)

	return ConnectionInfo{
		Instance: automation.InstanceInfo{
			ProcessID:    pid,
			SolutionPath: solutionPath,
		},
		SessionID: c.sessionID,
		Connected: true,
		Timestamp: time.Now().UTC(),
	}, nil
}

// State reports the current debug state, re-reading the foreign mode when a
// live handle exists. Without one the session is, by definition, in Design.
func (c *Controller) State(ctx context.Context) (StateInfo, error) {
	h := c.liveHandle(ctx)
	if h == nil {
		return c.designInfo(), nil
	}
	return c.refreshState(ctx, h)
}

// Start begins debugging: Design -> Running. Starting while already Running
// or Break is a no-op returning the current state, so clients can call it
// without first asking. A projectSelector naming a project that is not part
// of the open solution fails with a not-found error and stays in Design.
func (c *Controller) Start(ctx context.Context, projectName string) (StateInfo, error) {
	h, err := c.requireHandle(ctx, "start_debugging")
	if err != nil {
		return StateInfo{}, err
	}

	info, err := c.refreshState(ctx, h)
	if err != nil {
		return StateInfo{}, err
	}
	if info.IsDebugging {
		return info, nil
	}

	if projectName != "" {
		var projects []automation.Project
		if err := c.exec(ctx, h, "get_projects", func() error {
			var callErr error
			projects, callErr = h.Root.Solution().Projects(ctx)
			return callErr
		}); err != nil {
			return StateInfo{}, err
		}

		found := false
		for _, p := range projects {
			if p.Name == projectName {
				found = true
				break
			}
		}
		if !found {
			return StateInfo{}, errdefs.NotFound("project", projectName)
		}
	}

	if err := c.exec(ctx, h, "start_debugging", func() error {
		return h.Root.Debugger().Start(ctx, projectName)
	}); err != nil {
		return StateInfo{}, err
	}

	c.log.Info("Debugging started", "Project", projectName)
	return c.refreshState(ctx, h)
}

// Stop ends debugging: any state -> Design. Stopping an already idle session
// is a no-op.
func (c *Controller) Stop(ctx context.Context) (StateInfo, error) {
	h := c.liveHandle(ctx)
	if h == nil {
		return c.designInfo(), nil
	}

	info, err := c.refreshState(ctx, h)
	if err != nil {
		return StateInfo{}, err
	}
	if !info.IsDebugging {
		return info, nil
	}

	if err := c.exec(ctx, h, "stop_debugging", func() error {
		return h.Root.Debugger().Stop(ctx)
	}); err != nil {
		return StateInfo{}, err
	}

	c.setState(automation.ModeDesign)
	c.log.Info("Debugging stopped")
	return c.designInfo(), nil
}

// Step issues a single step. Valid only from Break; elsewhere it fails with a
// state error before any foreign call. After the step the state is re-read:
// execution settles back into Break, or into Design if the program finished.
func (c *Controller) Step(ctx context.Context, kind StepKind) (StateInfo, error) {
	if state := c.currentState(); state != automation.ModeBreak {
		return StateInfo{}, errdefs.State(string(kind), string(state))
	}

	h, err := c.requireHandle(ctx, string(kind))
	if err != nil {
		return StateInfo{}, err
	}

	if err := c.exec(ctx, h, string(kind), func() error {
		d := h.Root.Debugger()
		switch kind {
		case StepInto:
			return d.StepInto(ctx)
		case StepOver:
			return d.StepOver(ctx)
		case StepOut:
			return d.StepOut(ctx)
		default:
			return errors.New("unknown step kind")
		}
	}); err != nil {
		return StateInfo{}, err
	}

	return c.refreshState(ctx, h)
}

// AddBreakpoint registers a breakpoint. Valid in any state; a breakpoint set
// in Design simply has no observable effect until a session runs. Fails with
// a bridge error when no live handle exists.
func (c *Controller) AddBreakpoint(ctx context.Context, file string, line int, condition string) (Breakpoint, error) {
	h, err := c.requireHandle(ctx, "set_breakpoint")
	if err != nil {
		return Breakpoint{}, err
	}

	if err := c.exec(ctx, h, "set_breakpoint", func() error {
		return h.Root.Debugger().AddBreakpoint(ctx, file, line)
	}); err != nil {
		return Breakpoint{}, err
	}

	bp := Breakpoint{
		ID:        uuid.NewString(),
		File:      file,
		Line:      line,
		Condition: condition,
		Enabled:   true,
	}

	if condition != "" {
		c.log.Info("WARNING: breakpoint condition accepted but not applied; conditional breakpoints are not implemented",
			"File", file, "Line", line, "Condition", condition)
	}

	c.mu.Lock()
	c.breakpoints = append(c.breakpoints, bp)
	c.mu.Unlock()

	return bp, nil
}

// ListBreakpoints returns the breakpoints registered in this session.
// Never errors: without a live handle there is nothing to list.
func (c *Controller) ListBreakpoints(ctx context.Context) []Breakpoint {
	if c.liveHandle(ctx) == nil {
		return []Breakpoint{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Breakpoint{}, c.breakpoints...)
}

// LocalVariables returns the locals and parameters of the top stack frame.
// Outside Break there is nothing to show, so the result is empty, not an error.
func (c *Controller) LocalVariables(ctx context.Context) ([]automation.Variable, error) {
	if c.currentState() != automation.ModeBreak {
		return []automation.Variable{}, nil
	}

	h := c.liveHandle(ctx)
	if h == nil {
		return []automation.Variable{}, nil
	}

	var vars []automation.Variable
	if err := c.exec(ctx, h, "get_local_variables", func() error {
		var callErr error
		vars, callErr = h.Root.Debugger().LocalVariables(ctx)
		return callErr
	}); err != nil {
		return nil, err
	}
	if vars == nil {
		vars = []automation.Variable{}
	}
	return vars, nil
}

// CallStack returns the paused call stack, or an empty slice outside Break.
func (c *Controller) CallStack(ctx context.Context) ([]automation.StackFrame, error) {
	if c.currentState() != automation.ModeBreak {
		return []automation.StackFrame{}, nil
	}

	h := c.liveHandle(ctx)
	if h == nil {
		return []automation.StackFrame{}, nil
	}

	var frames []automation.StackFrame
	if err := c.exec(ctx, h, "get_call_stack", func() error {
		var callErr error
		frames, callErr = h.Root.Debugger().CallStack(ctx)
		return callErr
	}); err != nil {
		return nil, err
	}
	if frames == nil {
		frames = []automation.StackFrame{}
	}
	return frames, nil
}

// VariablesFromFrame returns the variables of the given stack frame (0 = top).
// Outside Break the result is empty, not an error.
func (c *Controller) VariablesFromFrame(ctx context.Context, frameIndex int) ([]automation.Variable, error) {
	if c.currentState() != automation.ModeBreak {
		return []automation.Variable{}, nil
	}

	h := c.liveHandle(ctx)
	if h == nil {
		return []automation.Variable{}, nil
	}

	var vars []automation.Variable
	if err := c.exec(ctx, h, "get_frame_variables", func() error {
		var callErr error
		vars, callErr = h.Root.Debugger().FrameVariables(ctx, frameIndex)
		return callErr
	}); err != nil {
		return nil, err
	}
	if vars == nil {
		vars = []automation.Variable{}
	}
	return vars, nil
}

// StackFrame returns the frame at the given index of the paused call stack.
func (c *Controller) StackFrame(ctx context.Context, frameIndex int) (automation.StackFrame, error) {
	frames, err := c.CallStack(ctx)
	if err != nil {
		return automation.StackFrame{}, err
	}
	if frameIndex < 0 || frameIndex >= len(frames) {
		return automation.StackFrame{}, errdefs.NotFound("stack frame", frameIndex)
	}
	return frames[frameIndex], nil
}

// ModifyVariable assigns a new value to a variable of the paused frame.
// Valid only in Break. The variable is searched among Locals first, then
// Parameters; the first match wins.
func (c *Controller) ModifyVariable(ctx context.Context, name string, value string) (automation.Variable, error) {
	if state := c.currentState(); state != automation.ModeBreak {
		return automation.Variable{}, errdefs.State("modify_variable", string(state))
	}

	h, err := c.requireHandle(ctx, "modify_variable")
	if err != nil {
		return automation.Variable{}, err
	}

	target, err := c.findVariable(ctx, h, name)
	if err != nil {
		return automation.Variable{}, err
	}

	if err := c.exec(ctx, h, "modify_variable", func() error {
		return h.Root.Debugger().SetVariable(ctx, name, value)
	}); err != nil {
		return automation.Variable{}, err
	}

	target.Value = value
	return target, nil
}

// InspectObject expands a variable of the paused frame. Valid only in Break;
// same Locals-then-Parameters search order as ModifyVariable.
func (c *Controller) InspectObject(ctx context.Context, name string) (automation.ObjectInfo, error) {
	if state := c.currentState(); state != automation.ModeBreak {
		return automation.ObjectInfo{}, errdefs.State("inspect_object", string(state))
	}

	h, err := c.requireHandle(ctx, "inspect_object")
	if err != nil {
		return automation.ObjectInfo{}, err
	}

	if _, err := c.findVariable(ctx, h, name); err != nil {
		return automation.ObjectInfo{}, err
	}

	var info automation.ObjectInfo
	if err := c.exec(ctx, h, "inspect_object", func() error {
		var callErr error
		info, callErr = h.Root.Debugger().Inspect(ctx, name)
		return callErr
	}); err != nil {
		return automation.ObjectInfo{}, err
	}
	return info, nil
}

// EvaluateExpression is intentionally unsupported: the foreign debugger
// binding in use offers no expression evaluation capability, and guessing at
// a partial implementation would produce wrong answers silently.
func (c *Controller) EvaluateExpression(_ context.Context, _ string) (automation.Variable, error) {
	return automation.Variable{}, errdefs.Unimplemented("evaluate_expression",
		"the foreign debugger binding does not expose expression evaluation")
}

// ConnectedPID returns the process id of the bound instance, or 0.
func (c *Controller) ConnectedPID() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid
}

func (c *Controller) currentState() automation.DebugMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(state automation.DebugMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Controller) designInfo() StateInfo {
	return StateInfo{IsDebugging: false, IsPaused: false, Mode: string(automation.ModeDesign)}
}

// liveHandle resolves the bound instance, or nil. Losing the handle tears the
// session down: the state falls back to Design and recorded breakpoints are
// dropped along with the foreign objects that backed them.
func (c *Controller) liveHandle(ctx context.Context) *instances.Handle {
	pid := c.ConnectedPID()
	if pid == 0 {
		return nil
	}

	h, err := c.registry.Resolve(ctx, pid)
	if err != nil || h == nil {
		c.teardown()
		return nil
	}
	return h
}

func (c *Controller) requireHandle(ctx context.Context, op string) (*instances.Handle, error) {
	h := c.liveHandle(ctx)
	if h == nil {
		return nil, errdefs.Bridge(op, errNoLiveHandle, true)
	}
	return h, nil
}

func (c *Controller) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != automation.ModeDesign || len(c.breakpoints) > 0 {
		c.log.Info("Automation handle lost, resetting session to Design", "PID", c.pid)
	}
	c.state = automation.ModeDesign
	c.breakpoints = nil
}

// refreshState re-reads the foreign debugger mode and, when paused, the
// current source position. This is where host-driven transitions (Running ->
// Break on a breakpoint hit, Break -> Design on program exit) are observed.
func (c *Controller) refreshState(ctx context.Context, h *instances.Handle) (StateInfo, error) {
	var mode automation.DebugMode
	var file string
	var line int

	if err := c.exec(ctx, h, "get_debug_state", func() error {
		var callErr error
		mode, callErr = h.Root.Debugger().Mode(ctx)
		if callErr != nil {
			return callErr
		}
		if mode == automation.ModeBreak {
			if file, line, callErr = h.Root.Debugger().CurrentLocation(ctx); callErr != nil {
				// The position is advisory; a paused session without one is
				// still paused.
				c.log.V(1).Info("Could not read current location", "error", callErr.Error())
				file, line = "", 0
			}
		}
		return nil
	}); err != nil {
		return StateInfo{}, err
	}

	c.setState(mode)

	return StateInfo{
		IsDebugging: mode != automation.ModeDesign,
		IsPaused:    mode == automation.ModeBreak,
		Mode:        string(mode),
		CurrentFile: file,
		CurrentLine: line,
	}, nil
}

// findVariable looks a name up among the paused frame's Locals, then its
// Parameters. The first match wins.
func (c *Controller) findVariable(ctx context.Context, h *instances.Handle, name string) (automation.Variable, error) {
	var vars []automation.Variable
	if err := c.exec(ctx, h, "get_local_variables", func() error {
		var callErr error
		vars, callErr = h.Root.Debugger().LocalVariables(ctx)
		return callErr
	}); err != nil {
		return automation.Variable{}, err
	}

	for _, scope := range []automation.VariableScope{automation.ScopeLocal, automation.ScopeParameter} {
		for _, v := range vars {
			if v.Scope == scope && v.Name == name {
				return v, nil
			}
		}
	}

	return automation.Variable{}, errdefs.NotFound("variable", name)
}

// exec runs a foreign call on the handle's serialized executor, bounded by
// the configured call timeout, with errors mapped into the bridge taxonomy.
func (c *Controller) exec(ctx context.Context, h *instances.Handle, op string, f func() error) error {
	return h.Call(ctx, c.callTimeout, op, f)
}
