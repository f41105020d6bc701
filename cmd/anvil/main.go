/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "anvil",
		Short:         "Run commands against a database through the anvil command layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default ./anvil.yaml)")
	flags.String("type", "", "database type: mysql, postgres, pgx or sqlite")
	flags.String("host", "", "database host")
	flags.Int("port", 0, "database port")
	flags.String("dbname", "", "database name, or sqlite file")
	flags.Bool("log-commands", false, "print every executed command")
	flags.String("log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newPingCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newScalarCmd())
	rootCmd.AddCommand(newScriptCmd())
	return rootCmd
}
