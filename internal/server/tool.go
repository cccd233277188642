/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package server

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/errdefs"
)

// Tool is one protocol-callable operation: a name, a description and an input
// schema for the catalog, and a handler that parses, validates and runs.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema

	handler func(ctx context.Context, rawArgs json.RawMessage) (any, error)
}

// newTool builds a tool over a typed argument struct. The schema is reflected
// from A. The validate stage runs before the handler and may rewrite the
// arguments in place (canonicalization); a validate error is returned to the
// caller without the handler ever running.
func newTool[A any](name string, description string, validate func(context.Context, *A) error, run func(context.Context, A) (any, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: reflectSchema[A](),
		handler: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			args := new(A)
			if len(rawArgs) > 0 {
				if err := json.Unmarshal(rawArgs, args); err != nil {
					return nil, errdefs.Validation(
						"arguments do not match the tool's input schema",
						map[string]any{"tool": name, "cause": err.Error()},
					)
				}
			}
			if validate != nil {
				if err := validate(ctx, args); err != nil {
					return nil, err
				}
			}
			return run(ctx, *args)
		},
	}
}

func reflectSchema[A any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return reflector.Reflect(new(A))
}
