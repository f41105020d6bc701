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
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	DefaultPageNumber = 1
	DefaultPageSize   = 10
)

// PageRequest normalizes a 1-based page number and a page size.
type PageRequest struct {
	page     int
	pageSize int
}

// NewPageRequest constructs a PageRequest. Out of range values are
// normalized lazily by the getters.
func NewPageRequest(page int, pageSize int) *PageRequest {
	return &PageRequest{page: page, pageSize: pageSize}
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = DefaultPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = DefaultPageNumber
	}
	return p.page
}

// GetOffset returns the number of rows to skip before the page starts,
// saturating at math.MaxInt instead of overflowing.
func (p *PageRequest) GetOffset() int {
	skipped, size := p.GetPage()-1, p.GetPageSize()
	if skipped > math.MaxInt/size {
		return math.MaxInt
	}
	return skipped * size
}

// PagedResult holds one page of items together with the total row count
// of the filtered set.
type PagedResult[T any] struct {
	PageNumber int   `json:"page_number"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	Items      []*T  `json:"items"`
}

// NewPagedResult wraps items into a page. A nil items slice is replaced by
// an empty one.
func NewPagedResult[T any](page *PageRequest, total int64, items []*T) *PagedResult[T] {
	if items == nil {
		items = make([]*T, 0)
	}
	return &PagedResult[T]{
		PageNumber: page.GetPage(),
		PageSize:   page.GetPageSize(),
		TotalCount: total,
		Items:      items,
	}
}

// TotalPages returns the number of pages needed for TotalCount rows.
func (p *PagedResult[T]) TotalPages() int64 {
	if p.PageSize < 1 || p.TotalCount == 0 {
		return 0
	}
	size := int64(p.PageSize)
	return (p.TotalCount + size - 1) / size
}

var emptyPages = xsync.NewMapOf[reflect.Type, any]()

// EmptyPagedResult returns the shared empty page for T. The same pointer is
// returned on every call; callers must not modify it.
func EmptyPagedResult[T any]() *PagedResult[T] {
	key := reflect.TypeOf((*T)(nil)).Elem()
	v, _ := emptyPages.LoadOrCompute(key, func() any {
		return &PagedResult[T]{
			PageNumber: DefaultPageNumber,
			PageSize:   DefaultPageSize,
			Items:      make([]*T, 0),
		}
	})
	return v.(*PagedResult[T])
}
