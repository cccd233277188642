/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package server

import (
	"context"
	"errors"
	"time"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/automation"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/debugging"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/errdefs"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/instances"
	"github.com/twelvestocks/visual-studio-mcp-server/pkg/resiliency"
)

var (
	errNotConnected    = errors.New("no connected instance; call vs_connect_instance first")
	errBuildInProgress = errors.New("build still in progress")
)

type emptyArgs struct{}

type connectArgs struct {
	ProcessID int `json:"processId" jsonschema:"description=Process id of the running IDE instance to connect to"`
}

type openSolutionArgs struct {
	Path string `json:"path" jsonschema:"description=Absolute path to the .sln file to open"`
}

type buildArgs struct {
	Configuration string `json:"configuration,omitempty" jsonschema:"description=Build configuration (case-insensitive; defaults to the first configured one)"`
}

type startDebuggingArgs struct {
	ProjectName string `json:"projectName,omitempty" jsonschema:"description=Project to debug; empty starts the startup project"`
}

type breakpointArgs struct {
	File      string `json:"file" jsonschema:"description=Source file the breakpoint belongs to"`
	Line      int    `json:"line" jsonschema:"description=1-based line number"`
	Condition string `json:"condition,omitempty" jsonschema:"description=Condition expression (accepted and echoed, currently not applied)"`
}

type variableArgs struct {
	Name string `json:"name" jsonschema:"description=Variable name, searched in locals then parameters"`
}

type modifyVariableArgs struct {
	Name  string `json:"name" jsonschema:"description=Variable name, searched in locals then parameters"`
	Value string `json:"value" jsonschema:"description=New value, rendered as the debugger expects it"`
}

type evaluateArgs struct {
	Expression string `json:"expression" jsonschema:"description=Expression to evaluate in the paused frame"`
}

func (s *Server) catalog() []Tool {
	return []Tool{
		newTool("vs_list_instances",
			"List running IDE instances that can be connected to.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				infos, err := s.deps.Discovery.Instances(ctx)
				if err != nil {
					return nil, errdefs.Bridge("list_instances", err, true)
				}
				if infos == nil {
					infos = []automation.InstanceInfo{}
				}
				return map[string]any{"instances": infos}, nil
			}),

		newTool("vs_connect_instance",
			"Connect to a running IDE instance by process id.",
			func(_ context.Context, args *connectArgs) error {
				_, err := s.deps.Validator.ProcessID(args.ProcessID, true)
				return err
			},
			func(ctx context.Context, args connectArgs) (any, error) {
				return s.deps.Controller.Connect(ctx, int32(args.ProcessID))
			}),

		newTool("vs_open_solution",
			"Open a solution file in the connected instance.",
			func(_ context.Context, args *openSolutionArgs) error {
				return s.deps.Validator.FilePath(args.Path, ".sln")
			},
			func(ctx context.Context, args openSolutionArgs) (any, error) {
				h, err := s.connectedHandle(ctx, "open_solution")
				if err != nil {
					return nil, err
				}
				if err := h.Call(ctx, s.callTimeout(), "open_solution", func() error {
					return h.Root.Solution().Open(ctx, args.Path)
				}); err != nil {
					return nil, err
				}
				return map[string]any{"path": args.Path, "opened": true}, nil
			}),

		newTool("vs_get_projects",
			"List the projects of the open solution.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				h, err := s.connectedHandle(ctx, "get_projects")
				if err != nil {
					return nil, err
				}
				var projects []automation.Project
				if err := h.Call(ctx, s.callTimeout(), "get_projects", func() error {
					var callErr error
					projects, callErr = h.Root.Solution().Projects(ctx)
					return callErr
				}); err != nil {
					return nil, err
				}
				if projects == nil {
					projects = []automation.Project{}
				}
				return map[string]any{"projects": projects}, nil
			}),

		newTool("vs_build_solution",
			"Build the open solution and wait for the result.",
			func(_ context.Context, args *buildArgs) error {
				if args.Configuration == "" {
					args.Configuration = s.deps.Validator.Configurations()[0]
					return nil
				}
				canonical, err := s.deps.Validator.Configuration(args.Configuration)
				if err != nil {
					return err
				}
				args.Configuration = canonical
				return nil
			},
			s.buildSolution),

		newTool("vs_start_debugging",
			"Start debugging, optionally naming the project to run.",
			nil,
			func(ctx context.Context, args startDebuggingArgs) (any, error) {
				return s.deps.Controller.Start(ctx, args.ProjectName)
			}),

		newTool("vs_stop_debugging",
			"Stop the running debug session.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				return s.deps.Controller.Stop(ctx)
			}),

		newTool("vs_get_debug_state",
			"Report the current debug state, including the paused position when in Break.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				return s.deps.Controller.State(ctx)
			}),

		newTool("vs_set_breakpoint",
			"Set a line breakpoint in the connected instance.",
			func(_ context.Context, args *breakpointArgs) error {
				if args.File == "" {
					return errdefs.Validation("file must not be empty", nil)
				}
				if args.Line < 1 {
					return errdefs.Validation("line must be a positive 1-based line number", map[string]any{"line": args.Line})
				}
				return nil
			},
			func(ctx context.Context, args breakpointArgs) (any, error) {
				return s.deps.Controller.AddBreakpoint(ctx, args.File, args.Line, args.Condition)
			}),

		newTool("vs_get_breakpoints",
			"List the breakpoints registered in this session.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				return map[string]any{"breakpoints": s.deps.Controller.ListBreakpoints(ctx)}, nil
			}),

		newTool("vs_get_local_variables",
			"List locals and parameters of the paused frame; empty when not paused.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				vars, err := s.deps.Controller.LocalVariables(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"variables": vars}, nil
			}),

		newTool("vs_get_call_stack",
			"Report the paused call stack; empty when not paused.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				frames, err := s.deps.Controller.CallStack(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"frames": frames}, nil
			}),

		newTool("vs_step_into",
			"Step into the next statement; valid only while paused.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				return s.deps.Controller.Step(ctx, debugging.StepInto)
			}),

		newTool("vs_step_over",
			"Step over the next statement; valid only while paused.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				return s.deps.Controller.Step(ctx, debugging.StepOver)
			}),

		newTool("vs_step_out",
			"Step out of the current method; valid only while paused.",
			nil,
			func(ctx context.Context, _ emptyArgs) (any, error) {
				return s.deps.Controller.Step(ctx, debugging.StepOut)
			}),

		newTool("vs_modify_variable",
			"Assign a new value to a variable of the paused frame.",
			func(_ context.Context, args *modifyVariableArgs) error {
				if args.Name == "" {
					return errdefs.Validation("name must not be empty", nil)
				}
				return nil
			},
			func(ctx context.Context, args modifyVariableArgs) (any, error) {
				variable, err := s.deps.Controller.ModifyVariable(ctx, args.Name, args.Value)
				if err != nil {
					return nil, err
				}
				return map[string]any{"variable": variable}, nil
			}),

		newTool("vs_inspect_object",
			"Expand a variable of the paused frame into its members.",
			func(_ context.Context, args *variableArgs) error {
				if args.Name == "" {
					return errdefs.Validation("name must not be empty", nil)
				}
				return nil
			},
			func(ctx context.Context, args variableArgs) (any, error) {
				return s.deps.Controller.InspectObject(ctx, args.Name)
			}),

		newTool("vs_evaluate_expression",
			"Evaluate an expression in the paused frame (currently unsupported).",
			func(_ context.Context, args *evaluateArgs) error {
				if args.Expression == "" {
					return errdefs.Validation("expression must not be empty", nil)
				}
				return nil
			},
			func(ctx context.Context, args evaluateArgs) (any, error) {
				return s.deps.Controller.EvaluateExpression(ctx, args.Expression)
			}),
	}
}

func (s *Server) callTimeout() time.Duration {
	return s.deps.Config.CallTimeout.Std()
}

// connectedHandle resolves the handle of the instance the controller is bound
// to. Instance-scoped tools fail with a bridge error when there is none.
func (s *Server) connectedHandle(ctx context.Context, op string) (*instances.Handle, error) {
	pid := s.deps.Controller.ConnectedPID()
	if pid == 0 {
		return nil, errdefs.Bridge(op, errNotConnected, true)
	}
	h, err := s.deps.Registry.Resolve(ctx, pid)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errdefs.Bridge(op, errNotConnected, true)
	}
	return h, nil
}

// buildSolution starts a build and polls with exponential backoff until the
// host reports it settled, bounded by the configured build timeout. Each poll
// is its own bounded foreign call; the backoff waits happen between calls, on
// this goroutine, so the handle executor is never held across a wait.
func (s *Server) buildSolution(ctx context.Context, args buildArgs) (any, error) {
	h, err := s.connectedHandle(ctx, "build_solution")
	if err != nil {
		return nil, err
	}

	started := time.Now()
	if err := h.Call(ctx, s.callTimeout(), "build_solution", func() error {
		return h.Root.Build().Start(ctx, args.Configuration)
	}); err != nil {
		return nil, err
	}

	s.log.Info("Build started", "Configuration", args.Configuration)

	buildTimeout := s.deps.Config.BuildTimeout.Std()
	_, waitErr := resiliency.RetryGetWithTimeout(ctx, buildTimeout, func() (struct{}, error) {
		var inProgress bool
		if err := h.Call(ctx, s.callTimeout(), "build_solution", func() error {
			var callErr error
			inProgress, callErr = h.Root.Build().InProgress(ctx)
			return callErr
		}); err != nil {
			return struct{}{}, resiliency.Permanent(err)
		}
		if inProgress {
			return struct{}{}, errBuildInProgress
		}
		return struct{}{}, nil
	})
	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) {
			return nil, errdefs.Timeout("build_solution", buildTimeout)
		}
		return nil, waitErr
	}

	var result automation.BuildResult
	if err := h.Call(ctx, s.callTimeout(), "build_solution", func() error {
		var callErr error
		result, callErr = h.Root.Build().Result(ctx)
		return callErr
	}); err != nil {
		return nil, err
	}
	if result.DurationMs == 0 {
		result.DurationMs = time.Since(started).Milliseconds()
	}

	s.log.Info("Build finished", "Configuration", args.Configuration,
		"Success", result.Success, "Errors", result.Errors, "Warnings", result.Warnings)

	return map[string]any{
		"configuration": args.Configuration,
		"buildResult":   result,
	}, nil
}
