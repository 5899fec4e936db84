// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Command sas7bdat converts and inspects SAS7BDAT dataset files.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/spf13/cobra"

	"github.com/sasdata/sas7bdat"
)

// Exit codes of the tool.
const (
	exitUsage          = 2
	exitInvalidInput   = 3
	exitIO             = 4
	exitSchemaMismatch = 5
)

var rootCmd = &cobra.Command{
	Use:           "sas7bdat [command] (flags)",
	Short:         "sas7bdat conversion/inspection tool",
	Long:          ``,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Mark(err, errUsage)
	})
	rootCmd.AddCommand(
		convertCmd,
		inspectCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sas7bdat: %s\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error onto the tool's documented exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, sas7bdat.ErrSchemaMismatch):
		return exitSchemaMismatch
	case errors.Is(err, sas7bdat.ErrInvalidHeader),
		errors.Is(err, sas7bdat.ErrInvalidCompressed),
		errors.Is(err, sas7bdat.ErrUnsupportedEncoding):
		return exitInvalidInput
	case errors.Is(err, errUsage):
		return exitUsage
	case oserror.IsNotExist(err), oserror.IsPermission(err), isIOError(err):
		return exitIO
	default:
		return exitIO
	}
}

var errUsage = errors.New("usage error")

func usageErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), errUsage)
}

func isIOError(err error) bool {
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

// exactArgs is cobra.ExactArgs with the error marked as a usage error so
// it maps to the documented exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("expected %d argument(s), got %d", n, len(args))
		}
		return nil
	}
}
