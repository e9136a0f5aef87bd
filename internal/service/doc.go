// Package service contains the application use cases of the drafting and
// review workflow. It coordinates domain objects, the workflow state machine
// and the stores defined in internal/store, and publishes generation jobs to
// the task queue.
//
// Every task mutation goes through a conditional store write. When the write
// is not applied because another actor changed the task first, services
// return store.ErrConflict rather than retrying.
//
// Error handling:
//   - Expected conditions are returned as sentinel errors (store.ErrNotFound
//     variants, domain.ErrInvalidStateTransition, store.ErrConflict,
//     domain.ErrValidation and the sentinels in this package)
//   - Unexpected errors are wrapped in *ServiceError with the failed operation
//   - The API layer maps sentinels to HTTP status codes
package service
