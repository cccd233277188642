/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package version

const DevelopmentVersion = "dev"

// Overridden at build time via -ldflags.
var (
	ProductVersion = DevelopmentVersion
	CommitHash     = ""
	BuildTimestamp = ""
)

type Info struct {
	Version        string `json:"version"`
	CommitHash     string `json:"commitHash,omitempty"`
	BuildTimestamp string `json:"buildTimestamp,omitempty"`
}

func Get() Info {
	v := ProductVersion
	if v == "" {
		v = DevelopmentVersion
	}
	return Info{
		Version:        v,
		CommitHash:     CommitHash,
		BuildTimestamp: BuildTimestamp,
	}
}
