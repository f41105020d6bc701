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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/anvil/database"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"a=1", "b=x=y", "empty="})
	require.NoError(t, err)
	assert.Equal(t, database.Map{"a": "1", "b": "x=y", "empty": ""}, params)

	for _, bad := range []string{"novalue", "=1"} {
		_, err := parseParams([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"version", "ping", "exec", "scalar", "script"}, names)

	for _, flag := range []string{"config", "type", "host", "port", "dbname", "log-commands", "log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}
