/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package logger builds the logr.Logger used throughout the server.
//
// All log output goes to stderr: stdout is reserved for protocol frames, and a
// single stray log line there would corrupt the stream for the client.
package logger

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	logr.Logger
	name        string
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a logger that writes human-readable, ISO8601-timestamped
// entries to stderr. The verbosity can be adjusted at runtime via SetLevel
// (typically wired to the --verbosity flag, see AddLevelFlag).
func New(name string) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	atomicLevel := zap.NewAtomicLevel()
	core := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), atomicLevel)

	zapLogger := zap.New(core)

	l := &Logger{
		name:        name,
		atomicLevel: atomicLevel,
		flush:       func() { _ = zapLogger.Sync() },
	}
	l.Logger = zapr.NewLogger(zapLogger).WithName(name)

	return l
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

func (l *Logger) Flush() {
	l.flush()
}
