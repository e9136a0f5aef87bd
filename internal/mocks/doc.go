// Package mocks provides in-memory implementations of the store interfaces
// and a scriptable generation provider for tests. The stores honor the same
// conditional-update contract as the Postgres stores.
package mocks
