/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package commands wires the command-line surface of the bridge server.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/twelvestocks/visual-studio-mcp-server/pkg/logger"
)

func NewRootCmd() (*cobra.Command, error) {
	log := logger.New("vsmcp")

	rootCmd := &cobra.Command{
		Use:   "vsmcp",
		Short: "Bridges a JSON-line tool protocol to Visual Studio automation",
		Long: `vsmcp lets an external orchestrator discover, connect to, build and debug
running Visual Studio instances over a newline-delimited JSON-RPC protocol
on stdin/stdout. All logging goes to stderr.`,
		SilenceUsage: true,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			log.Flush()
		},
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	log.AddLevelFlag(rootCmd.PersistentFlags())

	rootCmd.AddCommand(NewServeCommand(log))
	rootCmd.AddCommand(NewInfoCommand(log))

	return rootCmd, nil
}
