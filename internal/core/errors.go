// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import "errors"

// Lifetime errors. These are panic values: hitting one is a bug in the caller.
var (
	ErrSnapshotClosed = errors.New("snapshot already closed")
	ErrWriterDone     = errors.New("writer used outside its update")
)

// Batch errors
var (
	ErrEmptyBatch          = errors.New("batch is empty")
	ErrBatchAlreadyApplied = errors.New("batch already applied")
)

// ErrClosed is returned by operations on a closed dictionary that can fail.
var ErrClosed = errors.New("dictionary closed")
