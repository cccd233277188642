/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package automationtest provides scriptable fakes for the automation
// capability surface. The fakes count every foreign call they receive so
// tests can assert that state-gated operations never touch the foreign
// interface.
package automationtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/automation"
)

// FakeRoot implements automation.Root. All sub-capabilities share the root's
// foreign-call counter.
type FakeRoot struct {
	pid int32

	// OpCalls counts foreign operations excluding liveness pings.
	OpCalls atomic.Int64

	// PingCalls counts liveness probes.
	PingCalls atomic.Int64

	// PanicOnPing makes the next pings panic instead of returning.
	PanicOnPing atomic.Bool

	mu      sync.Mutex
	pingErr error

	Debug *FakeDebugger
	Bld   *FakeBuildManager
	Sln   *FakeSolution
}

func NewFakeRoot(pid int32) *FakeRoot {
	r := &FakeRoot{pid: pid}
	r.Debug = &FakeDebugger{root: r, mode: automation.ModeDesign, SettleMode: automation.ModeBreak}
	r.Bld = &FakeBuildManager{root: r}
	r.Sln = &FakeSolution{root: r}
	return r
}

// SetPingError makes subsequent pings fail, simulating a dead or hung instance.
func (r *FakeRoot) SetPingError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pingErr = err
}

func (r *FakeRoot) ProcessID() int32 { return r.pid }

func (r *FakeRoot) Ping(_ context.Context) error {
	r.PingCalls.Add(1)
	if r.PanicOnPing.Load() {
		panic("scripted ping panic")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pingErr
}

func (r *FakeRoot) Build() automation.BuildManager { return r.Bld }
func (r *FakeRoot) Debugger() automation.Debugger  { return r.Debug }
func (r *FakeRoot) Solution() automation.Solution  { return r.Sln }

var _ automation.Root = (*FakeRoot)(nil)

// FakeDebugger is a scriptable automation.Debugger.
type FakeDebugger struct {
	root *FakeRoot
	mu   sync.Mutex

	mode automation.DebugMode

	// SettleMode is the mode a step operation settles into (Break by default,
	// Design if stepping ran the program to completion).
	SettleMode automation.DebugMode

	// FailWith, when set, makes every operation return this error.
	FailWith error

	Variables   []automation.Variable
	FrameVars   map[int][]automation.Variable
	Stack       []automation.StackFrame
	Location    automation.StackFrame
	InspectInfo map[string]automation.ObjectInfo

	// Recorded effects.
	AddedBreakpoints []BreakpointCall
	SetVariables     map[string]string
	StartedProjects  []string
}

// BreakpointCall records one AddBreakpoint foreign call. There is
// deliberately no condition field: the foreign interface is never handed one.
type BreakpointCall struct {
	File string
	Line int
}

// SetMode scripts the debugger mode, simulating host-side transitions such as
// a breakpoint being hit.
func (d *FakeDebugger) SetMode(mode automation.DebugMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
}

func (d *FakeDebugger) call() error {
	d.root.OpCalls.Add(1)
	return d.FailWith
}

func (d *FakeDebugger) Mode(_ context.Context) (automation.DebugMode, error) {
	if err := d.call(); err != nil {
		return automation.ModeDesign, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode, nil
}

func (d *FakeDebugger) Start(_ context.Context, projectName string) error {
	if err := d.call(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartedProjects = append(d.StartedProjects, projectName)
	d.mode = automation.ModeRun
	return nil
}

func (d *FakeDebugger) Stop(_ context.Context) error {
	if err := d.call(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = automation.ModeDesign
	return nil
}

func (d *FakeDebugger) step() error {
	if err := d.call(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = d.SettleMode
	return nil
}

func (d *FakeDebugger) StepInto(_ context.Context) error { return d.step() }
func (d *FakeDebugger) StepOver(_ context.Context) error { return d.step() }
func (d *FakeDebugger) StepOut(_ context.Context) error  { return d.step() }

func (d *FakeDebugger) AddBreakpoint(_ context.Context, file string, line int) error {
	if err := d.call(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AddedBreakpoints = append(d.AddedBreakpoints, BreakpointCall{File: file, Line: line})
	return nil
}

func (d *FakeDebugger) CurrentLocation(_ context.Context) (string, int, error) {
	if err := d.call(); err != nil {
		return "", 0, err
	}
	return d.Location.File, d.Location.Line, nil
}

func (d *FakeDebugger) LocalVariables(_ context.Context) ([]automation.Variable, error) {
	if err := d.call(); err != nil {
		return nil, err
	}
	return append([]automation.Variable(nil), d.Variables...), nil
}

func (d *FakeDebugger) FrameVariables(_ context.Context, frameIndex int) ([]automation.Variable, error) {
	if err := d.call(); err != nil {
		return nil, err
	}
	return append([]automation.Variable(nil), d.FrameVars[frameIndex]...), nil
}

func (d *FakeDebugger) CallStack(_ context.Context) ([]automation.StackFrame, error) {
	if err := d.call(); err != nil {
		return nil, err
	}
	return append([]automation.StackFrame(nil), d.Stack...), nil
}

func (d *FakeDebugger) SetVariable(_ context.Context, name string, value string) error {
	if err := d.call(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SetVariables == nil {
		d.SetVariables = map[string]string{}
	}
	d.SetVariables[name] = value
	return nil
}

func (d *FakeDebugger) Inspect(_ context.Context, name string) (automation.ObjectInfo, error) {
	if err := d.call(); err != nil {
		return automation.ObjectInfo{}, err
	}
	if info, found := d.InspectInfo[name]; found {
		return info, nil
	}
	return automation.ObjectInfo{}, errors.New("no scripted inspect result")
}

var _ automation.Debugger = (*FakeDebugger)(nil)

// FakeBuildManager is a scriptable automation.BuildManager. A started build
// reports in-progress for PollsUntilDone polls, then settles with BuildOutcome.
type FakeBuildManager struct {
	root *FakeRoot
	mu   sync.Mutex

	FailWith       error
	PollsUntilDone int
	BuildOutcome   automation.BuildResult

	StartedConfigurations []string
	pollsLeft             int
}

func (b *FakeBuildManager) call() error {
	b.root.OpCalls.Add(1)
	return b.FailWith
}

func (b *FakeBuildManager) Start(_ context.Context, configuration string) error {
	if err := b.call(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StartedConfigurations = append(b.StartedConfigurations, configuration)
	b.pollsLeft = b.PollsUntilDone
	return nil
}

func (b *FakeBuildManager) InProgress(_ context.Context) (bool, error) {
	if err := b.call(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pollsLeft > 0 {
		b.pollsLeft--
		return true, nil
	}
	return false, nil
}

func (b *FakeBuildManager) Result(_ context.Context) (automation.BuildResult, error) {
	if err := b.call(); err != nil {
		return automation.BuildResult{}, err
	}
	return b.BuildOutcome, nil
}

var _ automation.BuildManager = (*FakeBuildManager)(nil)

// FakeSolution is a scriptable automation.Solution.
type FakeSolution struct {
	root *FakeRoot
	mu   sync.Mutex

	FailWith error
	Path     string
	Projs    []automation.Project

	OpenedPaths []string
}

func (s *FakeSolution) call() error {
	s.root.OpCalls.Add(1)
	return s.FailWith
}

func (s *FakeSolution) FullName(_ context.Context) (string, error) {
	if err := s.call(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Path, nil
}

func (s *FakeSolution) Open(_ context.Context, path string) error {
	if err := s.call(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenedPaths = append(s.OpenedPaths, path)
	s.Path = path
	return nil
}

func (s *FakeSolution) Projects(_ context.Context) ([]automation.Project, error) {
	if err := s.call(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]automation.Project(nil), s.Projs...), nil
}

var _ automation.Solution = (*FakeSolution)(nil)

// FakeDiscovery hands out FakeRoots by pid and counts acquisition attempts.
type FakeDiscovery struct {
	mu    sync.Mutex
	roots map[int32]*FakeRoot

	AcquireCalls atomic.Int64
	AcquireErr   error
}

func NewFakeDiscovery(roots ...*FakeRoot) *FakeDiscovery {
	d := &FakeDiscovery{roots: map[int32]*FakeRoot{}}
	for _, r := range roots {
		d.roots[r.ProcessID()] = r
	}
	return d
}

func (d *FakeDiscovery) AddRoot(r *FakeRoot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roots[r.ProcessID()] = r
}

func (d *FakeDiscovery) RemoveRoot(pid int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.roots, pid)
}

func (d *FakeDiscovery) Instances(_ context.Context) ([]automation.InstanceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	infos := make([]automation.InstanceInfo, 0, len(d.roots))
	for pid, r := range d.roots {
		infos = append(infos, automation.InstanceInfo{ProcessID: pid, SolutionPath: r.Sln.Path})
	}
	return infos, nil
}

func (d *FakeDiscovery) Acquire(_ context.Context, pid int32) (automation.Root, error) {
	d.AcquireCalls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.AcquireErr != nil {
		return nil, d.AcquireErr
	}
	r, found := d.roots[pid]
	if !found {
		return nil, errors.New("no connectable instance with that pid")
	}
	return r, nil
}

var _ automation.Discovery = (*FakeDiscovery)(nil)

// FakeProcessQuerier implements process.Querier over a scripted pid->name map.
type FakeProcessQuerier struct {
	mu        sync.Mutex
	processes map[int32]string
}

func NewFakeProcessQuerier(processes map[int32]string) *FakeProcessQuerier {
	if processes == nil {
		processes = map[int32]string{}
	}
	return &FakeProcessQuerier{processes: processes}
}

func (q *FakeProcessQuerier) SetProcess(pid int32, name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processes[pid] = name
}

func (q *FakeProcessQuerier) RemoveProcess(pid int32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processes, pid)
}

func (q *FakeProcessQuerier) IsRunning(pid int32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, found := q.processes[pid]
	return found
}

func (q *FakeProcessQuerier) Name(pid int32) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	name, found := q.processes[pid]
	if !found {
		return "", errors.New("process does not exist")
	}
	return name, nil
}
