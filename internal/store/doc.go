// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing business rules to remain
// independent of specific database technologies or persistence details.
//
// Every task mutation is conditional: it names the state it expects and
// reports ErrConflict when another writer got there first.
package store
