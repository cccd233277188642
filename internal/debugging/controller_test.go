package debugging

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/automation"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/automation/automationtest"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/errdefs"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/instances"
)

func newTestController(t *testing.T, roots ...*automationtest.FakeRoot) (*Controller, *automationtest.FakeDiscovery) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	discovery := automationtest.NewFakeDiscovery(roots...)
	reg := instances.NewRegistry(ctx, discovery, instances.Options{ProbeTimeout: time.Second}, logr.Discard())
	return NewController(reg, 5*time.Second, logr.Discard()), discovery
}

func connect(t *testing.T, c *Controller, pid int32) ConnectionInfo {
	t.Helper()
	info, err := c.Connect(context.Background(), pid)
	require.NoError(t, err)
	return info
}

// pauseAt scripts the host debugger into Break and makes the controller
// observe the transition, the way a breakpoint hit would.
func pauseAt(t *testing.T, c *Controller, root *automationtest.FakeRoot, frame automation.StackFrame) {
	t.Helper()
	root.Debug.Location = frame
	root.Debug.SetMode(automation.ModeBreak)
	info, err := c.State(context.Background())
	require.NoError(t, err)
	require.True(t, info.IsPaused)
}

func TestConnectBindsSession(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	root.Sln.Path = `C:\src\app\App.sln`
	c, _ := newTestController(t, root)

	info := connect(t, c, 15420)
	require.True(t, info.Connected)
	require.Equal(t, int32(15420), info.Instance.ProcessID)
	require.Equal(t, `C:\src\app\App.sln`, info.Instance.SolutionPath)
	require.NotEmpty(t, info.SessionID)
	require.Equal(t, int32(15420), c.ConnectedPID())
}

func TestConnectUnknownPidIsNotFound(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)

	_, err := c.Connect(context.Background(), 4242)
	require.True(t, errdefs.IsNotFound(err))
	require.Zero(t, c.ConnectedPID())
}

func TestStepOutsideBreakFailsWithoutForeignCalls(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	ops := root.OpCalls.Load()
	pings := root.PingCalls.Load()

	for _, kind := range []StepKind{StepInto, StepOver, StepOut} {
		_, err := c.Step(context.Background(), kind)
		require.True(t, errdefs.IsState(err), "step %s in Design must be a state error", kind)
	}

	require.Equal(t, ops, root.OpCalls.Load(), "gated steps must not reach the foreign interface")
	require.Equal(t, pings, root.PingCalls.Load())
}

func TestModifyVariableOutsideBreakFailsWithoutForeignCalls(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	ops := root.OpCalls.Load()

	_, err := c.ModifyVariable(context.Background(), "counter", "42")
	require.True(t, errdefs.IsState(err))
	_, err = c.InspectObject(context.Background(), "counter")
	require.True(t, errdefs.IsState(err))

	require.Equal(t, ops, root.OpCalls.Load())
}

func TestInspectionOutsideBreakIsEmptyNotError(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	root.Debug.Variables = []automation.Variable{{Name: "counter", Value: "7", Scope: automation.ScopeLocal}}
	root.Debug.Stack = []automation.StackFrame{{Method: "Main", File: "Program.cs", Line: 10}}
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	ops := root.OpCalls.Load()

	vars, err := c.LocalVariables(context.Background())
	require.NoError(t, err)
	require.Empty(t, vars)

	frames, err := c.CallStack(context.Background())
	require.NoError(t, err)
	require.Empty(t, frames)

	frameVars, err := c.VariablesFromFrame(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, frameVars)

	require.Equal(t, ops, root.OpCalls.Load())
}

func TestStartIsIdempotentWhileDebugging(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	info, err := c.Start(context.Background(), "")
	require.NoError(t, err)
	require.True(t, info.IsDebugging)
	require.Equal(t, string(automation.ModeRun), info.Mode)

	// A second start must not launch a second session.
	info, err = c.Start(context.Background(), "")
	require.NoError(t, err)
	require.True(t, info.IsDebugging)
	require.Len(t, root.Debug.StartedProjects, 1)
}

func TestStartUnknownProjectIsNotFound(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	root.Sln.Projs = []automation.Project{{Name: "App"}, {Name: "App.Tests"}}
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	_, err := c.Start(context.Background(), "NoSuchProject")
	require.True(t, errdefs.IsNotFound(err))
	require.Empty(t, root.Debug.StartedProjects)

	info, err := c.State(context.Background())
	require.NoError(t, err)
	require.Equal(t, string(automation.ModeDesign), info.Mode)
}

func TestStartNamedProject(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	root.Sln.Projs = []automation.Project{{Name: "App"}}
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	info, err := c.Start(context.Background(), "App")
	require.NoError(t, err)
	require.True(t, info.IsDebugging)
	require.Equal(t, []string{"App"}, root.Debug.StartedProjects)
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	// Stop while idle is a no-op.
	info, err := c.Stop(context.Background())
	require.NoError(t, err)
	require.False(t, info.IsDebugging)

	_, err = c.Start(context.Background(), "")
	require.NoError(t, err)

	info, err = c.Stop(context.Background())
	require.NoError(t, err)
	require.False(t, info.IsDebugging)
	require.Equal(t, string(automation.ModeDesign), info.Mode)

	info, err = c.Stop(context.Background())
	require.NoError(t, err)
	require.False(t, info.IsDebugging)
}

func TestStateObservesHostPause(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	_, err := c.Start(context.Background(), "")
	require.NoError(t, err)

	// The host pauses itself on a breakpoint; the controller notices on the
	// next state read.
	root.Debug.Location = automation.StackFrame{File: "Program.cs", Line: 42}
	root.Debug.SetMode(automation.ModeBreak)

	info, err := c.State(context.Background())
	require.NoError(t, err)
	require.True(t, info.IsPaused)
	require.Equal(t, "Program.cs", info.CurrentFile)
	require.Equal(t, 42, info.CurrentLine)
}

func TestStateWithoutConnectionIsDesign(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)

	info, err := c.State(context.Background())
	require.NoError(t, err)
	require.False(t, info.IsDebugging)
	require.Equal(t, string(automation.ModeDesign), info.Mode)
}

func TestStepFromBreakSettles(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)
	pauseAt(t, c, root, automation.StackFrame{File: "Program.cs", Line: 42})

	info, err := c.Step(context.Background(), StepOver)
	require.NoError(t, err)
	require.True(t, info.IsPaused)

	// Stepping off the end of the program lands back in Design.
	root.Debug.SettleMode = automation.ModeDesign
	info, err = c.Step(context.Background(), StepOut)
	require.NoError(t, err)
	require.False(t, info.IsDebugging)

	// And the cached state now gates further steps.
	_, err = c.Step(context.Background(), StepInto)
	require.True(t, errdefs.IsState(err))
}

func TestBreakpointRoundTrip(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	bp, err := c.AddBreakpoint(context.Background(), `C:\src\app\Program.cs`, 42, "counter > 10")
	require.NoError(t, err)
	require.NotEmpty(t, bp.ID)
	require.Equal(t, `C:\src\app\Program.cs`, bp.File)
	require.Equal(t, 42, bp.Line)
	require.True(t, bp.Enabled)

	// The condition is echoed back to the caller but never handed to the
	// foreign interface.
	require.Equal(t, "counter > 10", bp.Condition)
	require.Equal(t,
		[]automationtest.BreakpointCall{{File: `C:\src\app\Program.cs`, Line: 42}},
		root.Debug.AddedBreakpoints)

	listed := c.ListBreakpoints(context.Background())
	require.Len(t, listed, 1)
	require.Equal(t, bp, listed[0])
}

func TestAddBreakpointWithoutConnectionIsBridgeError(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)

	_, err := c.AddBreakpoint(context.Background(), "Program.cs", 10, "")
	require.True(t, errdefs.IsBridge(err))
}

func TestLocalVariablesInBreak(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	root.Debug.Variables = []automation.Variable{
		{Name: "counter", Value: "7", Type: "int", Scope: automation.ScopeLocal},
		{Name: "input", Value: `"hi"`, Type: "string", Scope: automation.ScopeParameter},
	}
	c, _ := newTestController(t, root)
	connect(t, c, 15420)
	pauseAt(t, c, root, automation.StackFrame{File: "Program.cs", Line: 12})

	vars, err := c.LocalVariables(context.Background())
	require.NoError(t, err)
	require.Equal(t, root.Debug.Variables, vars)
}

func TestVariablesFromNamedFrame(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	root.Debug.Stack = []automation.StackFrame{
		{Method: "Inner", File: "Inner.cs", Line: 5},
		{Method: "Main", File: "Program.cs", Line: 30},
	}
	root.Debug.FrameVars = map[int][]automation.Variable{
		1: {{Name: "args", Type: "string[]", Scope: automation.ScopeParameter}},
	}
	c, _ := newTestController(t, root)
	connect(t, c, 15420)
	pauseAt(t, c, root, automation.StackFrame{File: "Inner.cs", Line: 5})

	frame, err := c.StackFrame(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "Main", frame.Method)

	vars, err := c.VariablesFromFrame(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, root.Debug.FrameVars[1], vars)

	_, err = c.StackFrame(context.Background(), 7)
	require.True(t, errdefs.IsNotFound(err))
}

func TestModifyVariablePrefersLocalOverParameter(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	root.Debug.Variables = []automation.Variable{
		{Name: "value", Value: "1", Type: "int", Scope: automation.ScopeParameter},
		{Name: "value", Value: "2", Type: "int", Scope: automation.ScopeLocal},
	}
	c, _ := newTestController(t, root)
	connect(t, c, 15420)
	pauseAt(t, c, root, automation.StackFrame{File: "Program.cs", Line: 12})

	modified, err := c.ModifyVariable(context.Background(), "value", "99")
	require.NoError(t, err)
	require.Equal(t, automation.ScopeLocal, modified.Scope)
	require.Equal(t, "99", modified.Value)
	require.Equal(t, map[string]string{"value": "99"}, root.Debug.SetVariables)
}

func TestModifyUnknownVariableIsNotFound(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)
	pauseAt(t, c, root, automation.StackFrame{})

	_, err := c.ModifyVariable(context.Background(), "ghost", "1")
	require.True(t, errdefs.IsNotFound(err))
	require.Empty(t, root.Debug.SetVariables)
}

func TestInspectObject(t *testing.T) {
	t.Parallel()

	obj := automation.ObjectInfo{
		Variable: automation.Variable{Name: "order", Type: "Order", Scope: automation.ScopeLocal},
		Members: []automation.Variable{
			{Name: "Id", Value: "17", Type: "int"},
			{Name: "Total", Value: "99.50", Type: "decimal"},
		},
	}
	root := automationtest.NewFakeRoot(15420)
	root.Debug.Variables = []automation.Variable{obj.Variable}
	root.Debug.InspectInfo = map[string]automation.ObjectInfo{"order": obj}
	c, _ := newTestController(t, root)
	connect(t, c, 15420)
	pauseAt(t, c, root, automation.StackFrame{})

	info, err := c.InspectObject(context.Background(), "order")
	require.NoError(t, err)
	require.Equal(t, obj, info)

	_, err = c.InspectObject(context.Background(), "ghost")
	require.True(t, errdefs.IsNotFound(err))
}

func TestEvaluateExpressionIsUnimplemented(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)
	pauseAt(t, c, root, automation.StackFrame{})

	_, err := c.EvaluateExpression(context.Background(), "counter + 1")
	require.True(t, errdefs.IsUnimplemented(err))
}

func TestHandleLossTearsSessionDown(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, discovery := newTestController(t, root)
	connect(t, c, 15420)

	_, err := c.AddBreakpoint(context.Background(), "Program.cs", 10, "")
	require.NoError(t, err)
	_, err = c.Start(context.Background(), "")
	require.NoError(t, err)

	// The host process dies: probes fail and it cannot be re-acquired.
	root.SetPingError(context.DeadlineExceeded)
	discovery.RemoveRoot(15420)

	info, err := c.State(context.Background())
	require.NoError(t, err)
	require.False(t, info.IsDebugging)
	require.Equal(t, string(automation.ModeDesign), info.Mode)
	require.Empty(t, c.ListBreakpoints(context.Background()))

	_, err = c.Step(context.Background(), StepInto)
	require.True(t, errdefs.IsState(err))
}

func TestBridgeErrorWrapsForeignFaultOnce(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	c, _ := newTestController(t, root)
	connect(t, c, 15420)

	root.Debug.FailWith = context.DeadlineExceeded
	_, err := c.State(context.Background())
	require.True(t, errdefs.IsBridge(err))

	// The foreign fault is reachable through exactly one bridge layer, and
	// re-wrapping a bridge error hands back the same error.
	var bridgeErr *errdefs.Error
	require.ErrorAs(t, err, &bridgeErr)
	require.ErrorIs(t, bridgeErr.Unwrap(), context.DeadlineExceeded)
	require.Same(t, bridgeErr, errdefs.Bridge("again", err, false))
}
