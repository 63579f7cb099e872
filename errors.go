package datablock

import "github.com/AlephTX/datablock/internal/coreerr"

// ErrorKind is the closed vocabulary of error kinds the core raises.
type ErrorKind = coreerr.Kind

// Error kinds, re-exported from internal/coreerr so callers never need
// to import the internal package directly.
const (
	MagicMismatch   = coreerr.MagicMismatch
	VersionMismatch = coreerr.VersionMismatch
	SecretMismatch  = coreerr.SecretMismatch
	SchemaMismatch  = coreerr.SchemaMismatch
	InitTimeout     = coreerr.InitTimeout
	SizeMismatch    = coreerr.SizeMismatch

	Timeout                = coreerr.Timeout
	NotReady               = coreerr.NotReady
	SingleProducerViolated = coreerr.SingleProducerViolated
	OwnerDead              = coreerr.OwnerDead

	ChecksumFailure  = coreerr.ChecksumFailure
	CorruptHeader    = coreerr.CorruptHeader
	ValidationFailed = coreerr.ValidationFailed

	Unsafe      = coreerr.Unsafe
	NotStuck    = coreerr.NotStuck
	InvalidSlot = coreerr.InvalidSlot

	MapFailed     = coreerr.MapFailed
	MutexPoisoned = coreerr.MutexPoisoned
	OSError       = coreerr.OSError
)

// Error is the typed error every data-plane and recovery operation
// surfaces to its caller.
type Error = coreerr.Error
