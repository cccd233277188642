/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/commands"
)

const (
	errCommand = 1
	errSetup   = 2
)

func main() {
	root, err := commands.NewRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errSetup)
	}

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errCommand)
	}
}
