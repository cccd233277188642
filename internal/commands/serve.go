/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/automation"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/config"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/debugging"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/instances"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/server"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/validation"
	"github.com/twelvestocks/visual-studio-mcp-server/pkg/logger"
	"github.com/twelvestocks/visual-studio-mcp-server/pkg/process"
)

func NewServeCommand(log *logger.Logger) *cobra.Command {
	var configPath string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the automation bridge over stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), log, configPath)
		},
	}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")

	return serveCmd
}

func runServe(ctx context.Context, log *logger.Logger, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registryCtx, cancelRegistry := context.WithCancel(ctx)
	defer cancelRegistry()

	discovery := newDiscovery()
	registry := instances.NewRegistry(registryCtx, discovery, instances.Options{
		SweepInterval: cfg.SweepInterval.Std(),
		ProbeTimeout:  cfg.ProbeTimeout.Std(),
	}, log.Logger)
	controller := debugging.NewController(registry, cfg.CallTimeout.Std(), log.Logger)
	validator := validation.NewValidator(process.OSQuerier{}, cfg.HostPattern(), cfg.BuildConfigurations)

	srv := server.New(server.Deps{
		Config:     cfg,
		Registry:   registry,
		Controller: controller,
		Discovery:  discovery,
		Validator:  validator,
	}, log.Logger)

	log.Info("Serving automation bridge on stdio",
		"SweepInterval", cfg.SweepInterval.Std().String(),
		"CallTimeout", cfg.CallTimeout.Std().String())

	return srv.Serve(ctx, os.Stdin, os.Stdout)
}

// newDiscovery returns the platform's instance discovery. The COM interop
// layer that backs it on Windows is supplied by a separate build; without it
// the server still runs, with every acquisition reporting the missing
// capability.
func newDiscovery() automation.Discovery {
	return automation.UnavailableDiscovery{
		Reason: fmt.Sprintf("no automation interop layer is built in for %s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
