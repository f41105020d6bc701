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

package database

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/anvil/types"
)

type Timestamps struct {
	CreatedAt time.Time `bun:"created_at"`
}

type Address struct {
	City string
	Zip  string `bun:"zip_code"`
}

type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`
	Timestamps

	ID      int64  `bun:"id,pk,autoincrement"`
	Email   string `bun:"email,notnull"`
	Nick    string
	Secret  string   `bun:"-"`
	Manager *Account `bun:"rel:belongs-to"`
	Home    Address  `bun:"embed:home_"`
	Version int      `bun:",scanonly"`
	note    string
}

type ledgerEntry struct {
	ID     int
	Amount float64
}

func (ledgerEntry) TableName() string { return "ledger" }

type draft struct {
	*Timestamps
	ID int
}

type clashing struct {
	A string `bun:"code"`
	B string `bun:"CODE"`
}

func TestRegistry_EntityMapping(t *testing.T) {
	meta, err := NewRegistry().Entity(reflect.TypeOf(&Account{}))
	require.NoError(t, err)

	assert.Equal(t, "accounts", meta.Table)
	assert.Equal(t, []types.ColumnMapping{
		{Column: "created_at", Field: "CreatedAt"},
		{Column: "id", Field: "ID"},
		{Column: "email", Field: "Email"},
		{Column: "Nick", Field: "Nick"},
		{Column: "home_City", Field: "City"},
		{Column: "home_zip_code", Field: "Zip"},
		{Column: "Version", Field: "Version"},
	}, meta.ColumnMappings())
	assert.Equal(t, []types.ColumnMapping{
		{Column: "created_at", Field: "CreatedAt"},
		{Column: "email", Field: "Email"},
		{Column: "Nick", Field: "Nick"},
		{Column: "home_City", Field: "City"},
		{Column: "home_zip_code", Field: "Zip"},
	}, meta.InsertableColumns())
	assert.Equal(t,
		"created_at AS CreatedAt, id AS ID, email AS Email, Nick AS Nick, home_City AS City, home_zip_code AS Zip, Version AS Version",
		meta.SelectList())
}

func TestRegistry_TableNames(t *testing.T) {
	r := NewRegistry()

	name, err := r.TableName(reflect.TypeOf(ledgerEntry{}))
	require.NoError(t, err)
	assert.Equal(t, "ledger", name)

	name, err = r.TableName(reflect.TypeOf(draft{}))
	require.NoError(t, err)
	assert.Equal(t, "draft", name)
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()

	_, err := r.Entity(nil)
	assert.ErrorIs(t, err, types.ErrArgument)

	_, err = r.Entity(reflect.TypeOf(42))
	assert.ErrorIs(t, err, types.ErrArgument)

	_, err = r.ColumnMappings(reflect.TypeOf(clashing{}))
	assert.ErrorIs(t, err, types.ErrArgument)
	assert.Contains(t, err.Error(), "twice")

	// failures are cached like successes
	_, again := r.InsertableColumns(reflect.TypeOf(clashing{}))
	assert.Equal(t, err, again)
}

func TestRegistry_ConcurrentFirstUse(t *testing.T) {
	r := NewRegistry()
	const workers = 16
	metas := make([]*EntityMeta, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			metas[i], _ = EntityOf[Account](r)
		}(i)
	}
	wg.Wait()

	for _, m := range metas {
		assert.Same(t, metas[0], m)
	}
}

func TestEntityMeta_FieldValue(t *testing.T) {
	meta, err := EntityOf[Account](NewRegistry())
	require.NoError(t, err)

	acc := &Account{Email: "a@example.com", Home: Address{City: "Oslo"}}
	v, err := meta.FieldValue(reflect.ValueOf(acc), "Email")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", v)

	v, err = meta.FieldValue(reflect.ValueOf(*acc), "City")
	require.NoError(t, err)
	assert.Equal(t, "Oslo", v)

	_, err = meta.FieldValue(reflect.ValueOf(acc), "Secret")
	assert.ErrorIs(t, err, types.ErrTranslation)

	_, err = meta.FieldValue(reflect.ValueOf((*Account)(nil)), "Email")
	assert.ErrorIs(t, err, types.ErrArgument)

	typ, ok := meta.FieldType("ID")
	assert.True(t, ok)
	assert.Equal(t, reflect.TypeOf(int64(0)), typ)
}

func TestEntityMeta_FieldValueThroughNilEmbed(t *testing.T) {
	meta, err := EntityOf[draft](NewRegistry())
	require.NoError(t, err)

	v, err := meta.FieldValue(reflect.ValueOf(draft{ID: 1}), "CreatedAt")
	require.NoError(t, err)
	assert.Nil(t, v)
}
