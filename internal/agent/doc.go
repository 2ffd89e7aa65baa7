// Package agent defines the persisted mirror of a runtime container and the
// contracts the rest of echopulse relies on.
//
// An Agent is keyed by the container id. It is created the first time the
// container is seen, refreshed on every later sighting and soft-deleted
// (IsActive false, other fields frozen) once the container disappears.
// Retired agents form the Memory Garden.
//
// Repository is implemented by package repository for SQLite, MongoDB and
// memory. Backends that can apply a batch atomically also implement
// Transactor, which the reconciler uses so a cycle is never half applied.
//
// The error taxonomy lives in errors.go: ErrRuntimeUnreachable skips a cycle,
// OperationError reports a failed runtime call to the issuing observer,
// RepositoryError aborts the current cycle and ErrInvalidCommand marks
// observer protocol errors.
package agent
