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

package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pageItem struct{ ID int }

func TestPageRequest_Normalizes(t *testing.T) {
	tests := []struct {
		page, size                     int
		wantPage, wantSize, wantOffset int
	}{
		{0, 0, 1, 10, 0},
		{-3, -1, 1, 10, 0},
		{1, 25, 1, 25, 0},
		{3, 20, 3, 20, 40},
		{2, 0, 2, 10, 10},
		{math.MaxInt, 1000, math.MaxInt, 1000, math.MaxInt},
		{math.MaxInt, math.MaxInt, math.MaxInt, math.MaxInt, math.MaxInt},
		{math.MaxInt / 2, 2, math.MaxInt / 2, 2, math.MaxInt - 3},
	}
	for _, tt := range tests {
		p := NewPageRequest(tt.page, tt.size)
		assert.Equal(t, tt.wantPage, p.GetPage())
		assert.Equal(t, tt.wantSize, p.GetPageSize())
		assert.Equal(t, tt.wantOffset, p.GetOffset())
	}
}

func TestNewPagedResult(t *testing.T) {
	r := NewPagedResult[pageItem](NewPageRequest(2, 5), 12, nil)
	assert.Equal(t, 2, r.PageNumber)
	assert.Equal(t, 5, r.PageSize)
	assert.Equal(t, int64(12), r.TotalCount)
	assert.NotNil(t, r.Items)
	assert.Empty(t, r.Items)
	assert.Equal(t, int64(3), r.TotalPages())
}

func TestEmptyPagedResult_SharedPerType(t *testing.T) {
	a := EmptyPagedResult[pageItem]()
	b := EmptyPagedResult[pageItem]()
	assert.Same(t, a, b)
	assert.Equal(t, 1, a.PageNumber)
	assert.Equal(t, 10, a.PageSize)
	assert.Zero(t, a.TotalCount)
	assert.Empty(t, a.Items)
	assert.Zero(t, a.TotalPages())

	other := EmptyPagedResult[struct{ Name string }]()
	assert.NotNil(t, other)
	assert.Empty(t, other.Items)
}
