// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/propmap/propmap/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
