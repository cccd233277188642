/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/config"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/version"
	"github.com/twelvestocks/visual-studio-mcp-server/pkg/logger"
)

type information struct {
	version.Info `json:",inline"`
	OS           string `json:"os"`
	Arch         string `json:"architecture"`

	// Defaults that apply when no config file is given.
	DefaultCallTimeout   string `json:"defaultCallTimeout"`
	DefaultSweepInterval string `json:"defaultSweepInterval"`
}

func NewInfoCommand(log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Prints information about the server and its defaults.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			defaults := config.Default()
			info := information{
				Info:                 version.Get(),
				OS:                   runtime.GOOS,
				Arch:                 runtime.GOARCH,
				DefaultCallTimeout:   defaults.CallTimeout.Std().String(),
				DefaultSweepInterval: defaults.SweepInterval.Std().String(),
			}

			raw, err := json.Marshal(info)
			if err != nil {
				log.Error(err, "could not serialize server information")
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
}
