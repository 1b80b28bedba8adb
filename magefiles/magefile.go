//go:build mage

// Package main contains Mage build targets for screenshot2.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "screenshot2"
	cmdPkg  = "./src/main"
)

var Default = Build

// Build compiles the binary into bin/. Windows builds hide the console only
// when GUI=1 is set, since capture reads commands from stdin.
func Build() error {
	mg.Deps(Vet)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	if runtime.GOOS == "windows" {
		out += ".exe"
	}
	ldflags := "-s -w -X main.version=" + version()
	if runtime.GOOS == "windows" && os.Getenv("GUI") == "1" {
		ldflags += " -H=windowsgui"
	}
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./src/...")
}

// Vet runs go vet over the module.
func Vet() error {
	return sh.RunV("go", "vet", "./src/...")
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}

func version() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	if v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty"); err == nil && v != "" {
		return v
	}
	return "dev"
}
