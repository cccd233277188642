/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package server

import (
	"encoding/json"
	"errors"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/errdefs"
)

const jsonrpcVersion = "2.0"

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id and therefore
// expects no response.
func (r request) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *errorObject    `json:"error,omitempty"`
}

// errorObject is the wire form of a non-fatal failure: a machine-readable
// taxonomy code, a human-readable message, and optional diagnostic data.
// Raw internal traces never cross the protocol boundary.
type errorObject struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func newResult(id json.RawMessage, result any) response {
	return response{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func newError(id json.RawMessage, err error) response {
	return response{JSONRPC: jsonrpcVersion, ID: id, Error: toErrorObject(err)}
}

func toErrorObject(err error) *errorObject {
	var e *errdefs.Error
	if !errors.As(err, &e) {
		e = errdefs.Internal(err)
	}
	return &errorObject{
		Code:    string(e.Code),
		Message: e.Message,
		Data:    e.Data,
	}
}
