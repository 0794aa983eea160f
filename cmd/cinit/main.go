// Copyright (C) 2026 The cinit Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "go.uber.org/automaxprocs"

	"github.com/cinit-dev/cinit/internal/lifecycle"
	"github.com/cinit-dev/cinit/internal/logger"
)

// version is set at build time via ldflags, same convention the teacher
// repo uses for its own CLI version string.
var version = "0.0.0"

const defaultConfigPath = "/etc/cinit.yml"
const defaultSocketPath = "/run/cinit.socket"

// __childexec is never reached through cobra: the parent re-execs itself
// with this as argv[1] (see internal/launcher.Launch), and it must be
// intercepted before any flag parsing or viper setup touches os.Args.
func main() {
	if len(os.Args) > 1 && os.Args[1] == "__childexec" {
		childExecMain()
		return
	}
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		socketPath string
		verbose    int
		showVer    bool
	)

	root := &cobra.Command{
		Use:           "cinit",
		Short:         "a dependency-aware PID 1 process supervisor for containers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVer {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}

			level := logger.ParseLevel(verbose)
			log := logger.NewLogger(logger.WithLevel(level))

			code := lifecycle.Run(lifecycle.Options{
				ConfigPath: viper.GetString("config"),
				SocketPath: viper.GetString("socket"),
				Log:        log,
			})
			if code != lifecycle.ExitSuccess {
				os.Exit(code)
			}
			return nil
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to a config file or directory of config files")
	root.Flags().StringVar(&socketPath, "socket", defaultSocketPath, "path to the status-dump AF_UNIX socket")
	root.Flags().CountVarP(&verbose, "verbose", "v", "increase log verbosity (-v debug, -vv trace)")
	root.Flags().BoolVarP(&showVer, "version", "V", false, "print the version and exit")

	_ = viper.BindPFlag("config", root.Flags().Lookup("config"))
	_ = viper.BindPFlag("socket", root.Flags().Lookup("socket"))
	viper.SetEnvPrefix("cinit")
	viper.AutomaticEnv()

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return lifecycle.ExitPrecondition
	}
	return lifecycle.ExitSuccess
}
