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
	"time"

	"github.com/spf13/cobra"

	"github.com/tomoncle/anvil/database"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured database is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			manager := database.NewDatabaseManager(&cfg.ConnectionConfig, cfg.CommandConfig)
			if err := manager.Connect(cmd.Context()); err != nil {
				return err
			}
			defer manager.Disconnect()

			status := manager.HealthCheck(cmd.Context())
			if !status.Healthy {
				return fmt.Errorf("database unhealthy: %s", status.LastError)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s (%s)\n", cfg.ConnectionConfig.Type, status.ResponseTime.Round(time.Microsecond))
			return nil
		},
	}
}

func newExecCmd() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "exec SQL",
		Short: "Execute a statement and print the affected row count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			source, err := parseParams(params)
			if err != nil {
				return err
			}
			conn, closeFn, err := openConnection(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			command, err := conn.CreateCommand(args[0], source)
			if err != nil {
				return err
			}
			n, err := conn.Execute(cmd.Context(), command)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d row(s) affected\n", n)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "parameter as name=value, referenced as @name")
	return cmd
}

func newScalarCmd() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "scalar SQL",
		Short: "Run a query and print the first column of the first row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			source, err := parseParams(params)
			if err != nil {
				return err
			}
			conn, closeFn, err := openConnection(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			command, err := conn.CreateCommand(args[0], source)
			if err != nil {
				return err
			}
			v, err := conn.ExecuteScalar(cmd.Context(), command)
			if err != nil {
				return err
			}
			s, err := database.ConvertTo[string](v)
			if err != nil || v == nil {
				s = "NULL"
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "parameter as name=value, referenced as @name")
	return cmd
}

func newScriptCmd() *cobra.Command {
	var (
		environment string
		root        string
		templated   bool
	)
	cmd := &cobra.Command{
		Use:   "script [FILE...]",
		Short: "Run SQL script files, or the configured script directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if environment == "" {
				environment = cfg.ScriptConfig.Environment
			}
			if root == "" {
				root = cfg.ScriptConfig.Filepath
			}
			conn, closeFn, err := openConnection(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			runner := database.NewScriptRunner(conn, environment)
			runner.SetRootPath(root)
			runner.EnableTemplate(templated)

			var results []database.ScriptResult
			if len(args) == 0 {
				results, err = runner.Run(cmd.Context())
			} else {
				for _, file := range args {
					res := runner.RunFile(cmd.Context(), file)
					results = append(results, res)
					if res.Err != nil {
						err = fmt.Errorf("%s: %w", file, res.Err)
						break
					}
				}
			}
			for _, res := range results {
				status := "ok"
				if res.Err != nil {
					status = "failed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s statements=%d rows=%d %s\n",
					status, res.File, res.Statements, res.RowsAffected, res.Duration.Round(time.Millisecond))
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&environment, "env", "e", "", "environment directory under environments/")
	cmd.Flags().StringVar(&root, "root", "", "script root directory")
	cmd.Flags().BoolVar(&templated, "template", false, "render files as text/template over the environment")
	return cmd
}
