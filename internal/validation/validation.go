/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package validation checks request parameters before any foreign call is attempted.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/errdefs"
	"github.com/twelvestocks/visual-studio-mcp-server/pkg/process"
)

const (
	// MaxProcessID is the largest process id accepted by the bridge.
	MaxProcessID = 65535
)

// Characters that are never valid in a path on any supported host filesystem.
const invalidPathChars = "<>\"|?*"

type Validator struct {
	procs process.Querier

	// hostPattern matches the executable name of a valid automation host process.
	hostPattern *regexp.Regexp

	// configurations is the build configuration whitelist, in canonical casing.
	configurations []string
}

func NewValidator(procs process.Querier, hostPattern *regexp.Regexp, configurations []string) *Validator {
	return &Validator{
		procs:          procs,
		hostPattern:    hostPattern,
		configurations: configurations,
	}
}

// ProcessID validates a process id parameter. When requireHost is set, the
// process's executable name must match the automation host pattern.
// Returns the id narrowed to int32 on success.
func (v *Validator) ProcessID(pid int, requireHost bool) (int32, error) {
	if pid < 1 || pid > MaxProcessID {
		return 0, errdefs.Validation(
			fmt.Sprintf("process id %d is out of range [1, %d]", pid, MaxProcessID),
			map[string]any{"processId": pid},
		)
	}

	id := int32(pid)
	if !v.procs.IsRunning(id) {
		return 0, errdefs.NotFound("process", pid)
	}

	if requireHost {
		name, err := v.procs.Name(id)
		if err != nil {
			return 0, errdefs.NotFound("process", pid)
		}
		if !v.hostPattern.MatchString(name) {
			return 0, errdefs.InvalidProcessType(id, name, v.hostPattern.String())
		}
	}

	return id, nil
}

// FilePath validates a path parameter. The path must be absolute, must not
// contain traversal sequences, must use only characters valid on the host
// filesystem, must carry the expected extension when one is specified, and
// must reference an existing file. Existence is checked deliberately so that
// a missing file is reported here, explicitly, instead of surfacing later as
// a less specific foreign-call failure.
func (v *Validator) FilePath(path string, wantExt string) error {
	if strings.TrimSpace(path) == "" {
		return errdefs.Validation("path must not be empty", nil)
	}

	data := map[string]any{"path": path}

	if strings.Contains(path, "..") || strings.Contains(path, "~") {
		return errdefs.Validation("path must not contain traversal sequences", data)
	}

	if strings.ContainsAny(path, invalidPathChars) || strings.ContainsRune(path, 0) {
		return errdefs.Validation("path contains characters that are not valid on the host filesystem", data)
	}

	if !filepath.IsAbs(path) {
		return errdefs.Validation("path must be absolute", data)
	}

	if wantExt != "" && !strings.EqualFold(filepath.Ext(path), wantExt) {
		data["expectedExtension"] = wantExt
		return errdefs.Validation(fmt.Sprintf("path must have the %s extension", wantExt), data)
	}

	if _, err := os.Stat(path); err != nil {
		return errdefs.NotFound("file", path)
	}

	return nil
}

// Configuration matches a build configuration against the whitelist,
// case-insensitively, and returns the canonically-cased value.
func (v *Validator) Configuration(value string) (string, error) {
	for _, canonical := range v.configurations {
		if strings.EqualFold(value, canonical) {
			return canonical, nil
		}
	}
	return "", errdefs.InvalidConfiguration(value, v.configurations)
}

// Configurations returns the whitelist in canonical casing.
func (v *Validator) Configurations() []string {
	return append([]string(nil), v.configurations...)
}
