// Package repository provides a generic repository that turns typed
// predicates into parameterized SQL for counting, fetching, paging,
// inserting, updating and deleting one entity shape.
package repository
