package metrics

import "codeberg.org/mutker/iceman/internal/errors"

const (
	// Configuration Errors
	ErrInvalidDBPath = errors.ErrorCode("history_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("history_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("history_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("history_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("history_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// Collection Errors
	ErrInvalidSample = errors.ErrorCode("metrics_invalid_sample")
	ErrLabelMismatch = errors.ErrorCode("metrics_label_mismatch")
)
