//go:build tools
// +build tools

// Package tools pins the code generators run by `go generate` (mockgen)
// so go.mod and go.sum stay in sync on a fresh checkout.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
