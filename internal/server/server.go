/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

/*
Package server is the request dispatcher: newline-delimited JSON-RPC 2.0
frames on stdin/stdout, routed through the validation gate into registry and
controller operations.

The loop is deliberately serial: one request is fully read, processed and
answered before the next is read. A handler may spend its time waiting on a
handle's executor goroutine, but externally there is never more than one
request in flight.

The dispatcher is also the process's recovery boundary. A panic escaping a
tool handler is reported as an error envelope — except fatal faults, which
are re-raised so the process dies instead of continuing on corrupted state.
*/
package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/automation"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/config"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/debugging"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/errdefs"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/instances"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/validation"
	"github.com/twelvestocks/visual-studio-mcp-server/pkg/resiliency"
)

const (
	serverName      = "visual-studio-mcp-server"
	serverVersion   = "1.0.0"
	protocolVersion = "2024-11-05"
)

// maxFrameSize bounds a single request line.
const maxFrameSize = 4 * 1024 * 1024

// Deps are the collaborators the dispatcher routes into.
type Deps struct {
	Config     config.Config
	Registry   *instances.Registry
	Controller *debugging.Controller
	Discovery  automation.Discovery
	Validator  *validation.Validator
}

type Server struct {
	deps Deps
	log  logr.Logger

	tools  []Tool
	byName map[string]Tool
}

func New(deps Deps, log logr.Logger) *Server {
	s := &Server{
		deps:   deps,
		log:    log.WithName("dispatcher"),
		byName: map[string]Tool{},
	}
	s.tools = s.catalog()
	for _, tool := range s.tools {
		s.byName[tool.Name] = tool
	}
	return s
}

// Tools returns the registered tool catalog in registration order.
func (s *Server) Tools() []Tool {
	return append([]Tool(nil), s.tools...)
}

// Serve reads requests from in and writes responses to out until in is
// exhausted or ctx is done. Notifications produce no response.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(ctx, line)
		if resp == nil {
			continue
		}

		raw, err := json.Marshal(resp)
		if err != nil {
			// Only reachable if a handler returned an unmarshalable payload.
			s.log.Error(err, "Could not serialize response")
			raw, _ = json.Marshal(newError(resp.ID, errdefs.Internal(err)))
		}
		if _, err := out.Write(append(raw, '\n')); err != nil {
			return fmt.Errorf("could not write response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("could not read request stream: %w", err)
	}
	return ctx.Err()
}

func (s *Server) handleLine(ctx context.Context, line []byte) *response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		resp := newError(nil, errdefs.Validation("request is not a JSON-RPC envelope", map[string]any{"cause": err.Error()}))
		return &resp
	}

	s.log.V(1).Info("Handling request", "Method", req.Method)

	switch req.Method {
	case "initialize":
		resp := newResult(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": serverName, "version": serverVersion},
		})
		return &resp

	case "notifications/initialized":
		return nil

	case "tools/list":
		resp := newResult(req.ID, s.listTools())
		return &resp

	case "tools/call":
		resp := s.handleCall(ctx, req)
		if req.isNotification() {
			return nil
		}
		return &resp

	default:
		if req.isNotification() {
			return nil
		}
		resp := newError(req.ID, errdefs.NotFound("method", req.Method))
		return &resp
	}
}

type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

func (s *Server) listTools() map[string]any {
	descriptors := make([]toolDescriptor, 0, len(s.tools))
	for _, tool := range s.tools {
		descriptors = append(descriptors, toolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return map[string]any{"tools": descriptors}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleCall(ctx context.Context, req request) response {
	var params callParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return newError(req.ID, errdefs.Validation("tools/call params must carry {name, arguments}", map[string]any{"cause": err.Error()}))
		}
	}

	tool, registered := s.byName[params.Name]
	if !registered {
		return newError(req.ID, errdefs.ToolNotFound(params.Name))
	}

	result, err := s.callTool(ctx, tool, params.Arguments)
	if err != nil {
		s.log.Info("Tool call failed", "Tool", tool.Name, "Code", string(errdefs.CodeOf(err)), "Error", err.Error())
		return newError(req.ID, err)
	}
	return newResult(req.ID, result)
}

// callTool is the recovery boundary. Fatal faults pass through untouched.
func (s *Server) callTool(ctx context.Context, tool Tool, rawArgs json.RawMessage) (result any, err error) {
	defer func() {
		panicVal := recover()
		if panicVal == nil {
			return
		}
		if errdefs.IsFatalPanic(panicVal) {
			panic(panicVal)
		}
		err = errdefs.Bridge(tool.Name, resiliency.PanicError(panicVal, s.log), false)
	}()

	return tool.handler(ctx, rawArgs)
}
