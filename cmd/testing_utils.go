// Package cmd contains testing utilities shared between command tests.
// This file provides common functions for setting up test environments,
// capturing output and running the CLI.
package cmd

import (
	"bytes"
	"io"
	"log"
	"os"
	"testing"

	"github.com/PolarWolf314/tiaki/internal/configs"
	"github.com/spf13/cobra"
)

const testPassphrase = "correct horse battery staple"

// setupTestEnvironment points the settings at a temporary data directory
// with a config that keeps key generation and the vault KDF fast.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()
	originalSettings := configs.TiakiSettings

	t.Cleanup(func() {
		configs.TiakiSettings = originalSettings
		ResetGlobalState()
	})

	t.Setenv(configs.EnvPassphrase, "")

	configs.TiakiSettings = &configs.Settings{Username: "testuser"}
	configs.TiakiSettings.UseDataDir(tempDir)

	config := configs.DefaultConfig()
	config.Keys.RSABits = 2048
	config.Keys.KDFTime = 1
	config.Keys.KDFMemoryKiB = 1024
	if err := configs.SaveConfig(config); err != nil {
		t.Fatalf("Failed to save test config: %v", err)
	}

	return tempDir
}

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	stdoutReader, stdoutWriter, _ := os.Pipe()
	stderrReader, stderrWriter, _ := os.Pipe()

	os.Stdout = stdoutWriter
	os.Stderr = stderrWriter

	stdoutChan := make(chan string, 1)
	stderrChan := make(chan string, 1)

	go func() {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, stdoutReader); err != nil {
			log.Fatalf("Failed to run copy command: %s", err)
		}
		stdoutChan <- buf.String()
	}()

	go func() {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, stderrReader); err != nil {
			log.Fatalf("Failed to run copy command: %s", err)
		}
		stderrChan <- buf.String()
	}()

	err := fn()

	stdoutWriter.Close()
	stderrWriter.Close()

	os.Stdout = originalStdout
	os.Stderr = originalStderr

	return <-stdoutChan + <-stderrChan, err
}

// createTestCLI creates a complete CLI instance for testing.
func createTestCLI(args []string) *cobra.Command {
	ResetGlobalState()

	rootCmd := &cobra.Command{
		Use:           "tiaki",
		Short:         "Tiaki - end-to-end encryption keys for your devices.",
		SilenceErrors: true,
	}
	rootCmd.AddCommand(DeviceCmd)
	rootCmd.AddCommand(ChannelCmd)
	rootCmd.SetArgs(args)

	return rootCmd
}

// runCLI executes the CLI with args and returns everything it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return captureOutput(func() error {
		return createTestCLI(args).Execute()
	})
}
