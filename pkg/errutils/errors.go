// Package errutils provides the error handling vocabulary for modelkeep.
// It defines the sentinel errors shared across packages and small helpers for
// wrapping them with context. Callers compare with errors.Is; every helper wraps
// with %w so the sentinel survives the trip up the call stack.
package errutils

import (
	"fmt"
)

// Common error types used throughout the application.
// Errors are grouped by their domain or functionality.
var (
	// Config errors are related to configuration file operations and validation.
	ErrEmptyConfigPath = fmt.Errorf(
		"config file path cannot be empty") // When config file path is empty

	ErrInvalidConfigPath = fmt.Errorf(
		"invalid config file path") // When provided config file path is invalid

	ErrConfigParse = fmt.Errorf(
		"failed to parse config") // When config file cannot be parsed

	// ErrConfigValidation is returned when configuration values fail validation.
	ErrConfigValidation = fmt.Errorf(
		"invalid configuration")

	ErrConfigEncode = fmt.Errorf(
		"failed to encode config") // When config cannot be encoded

	ErrConfigDirectory = fmt.Errorf(
		"failed to create config directory") // When config dir cannot be created

	ErrConfigFileCreate = fmt.Errorf(
		"failed to create config file") // When config file cannot be created

	// ErrConfigFileExists is returned when attempting to create a configuration file that already exists.
	ErrConfigFileExists = fmt.Errorf("configuration file already exists (use --force to overwrite)")

	// ErrConfigFileRename is returned when renaming the temporary config file fails.
	ErrConfigFileRename = fmt.Errorf("failed to rename temporary config file")

	// ErrConfigMarshal is returned when marshaling the config to YAML fails.
	ErrConfigMarshal = fmt.Errorf("failed to marshal config to YAML")

	// ErrHTTPTimeoutNegative is returned when HTTP timeout is set to a negative value.
	ErrHTTPTimeoutNegative = fmt.Errorf("http_timeout cannot be negative")

	// ErrProgressIntervalInvalid is returned when progress_interval is not positive.
	ErrProgressIntervalInvalid = fmt.Errorf("progress_interval must be positive")

	// ErrDeviceRAMNegative is returned when device_ram_gb is negative.
	ErrDeviceRAMNegative = fmt.Errorf("device_ram_gb cannot be negative")

	// ErrCatalogURLInvalid is returned when catalog_url is not an absolute http(s) URL.
	ErrCatalogURLInvalid = fmt.Errorf("catalog_url must be an absolute http(s) URL")

	// ErrInvalidOutputFormat is returned when an invalid output format is specified.
	ErrInvalidOutputFormat = fmt.Errorf("invalid output format")

	// ErrInvalidLogLevel is returned when an invalid log level is specified.
	ErrInvalidLogLevel = fmt.Errorf("invalid log level")

	// ErrInvalidBoolValue is returned when an invalid boolean value is provided in the configuration.
	ErrInvalidBoolValue = fmt.Errorf("invalid boolean value")

	// ErrUnknownConfigKey is returned when an unknown configuration key is encountered.
	ErrUnknownConfigKey = fmt.Errorf("unknown configuration key")

	// Filesystem errors.

	// ErrInvalidPath is returned when a file or directory path is invalid.
	ErrInvalidPath = fmt.Errorf("invalid path")

	// ErrArtifactMissing is returned when the stored artifact file is not on disk.
	ErrArtifactMissing = fmt.Errorf("artifact file missing")

	// Transfer errors are related to the download state machine and the transfer primitive.

	// ErrTransferInProgress is returned when a transfer is already active in the scope.
	ErrTransferInProgress = fmt.Errorf("transfer already in progress")

	// ErrTransferFailed is returned when a transfer ends with a non-success status.
	ErrTransferFailed = fmt.Errorf("transfer failed")

	// ErrTransferPaused is returned by a transfer handle whose transfer was suspended.
	ErrTransferPaused = fmt.Errorf("transfer paused")

	// ErrTransferFinished is returned when pausing a transfer that has already ended.
	ErrTransferFinished = fmt.Errorf("transfer already finished")

	// ErrInvalidResumeToken is returned when a resume token cannot be decoded.
	ErrInvalidResumeToken = fmt.Errorf("invalid resume token")

	// Catalog errors.

	// ErrCatalogFetch is returned when the remote catalog cannot be retrieved.
	ErrCatalogFetch = fmt.Errorf("failed to fetch catalog")

	// ErrCatalogInvalid is returned when a catalog document fails validation.
	ErrCatalogInvalid = fmt.Errorf("invalid catalog")

	// ErrDescriptorNotFound is returned when a recommended id is not in the catalog.
	ErrDescriptorNotFound = fmt.Errorf("descriptor not found in catalog")

	// ErrRecommendScript is returned when a catalog recommendation script fails.
	ErrRecommendScript = fmt.Errorf("recommendation script error")

	// Store errors.

	// ErrScopeInvalid is returned for persistence scope names that are not recognised.
	ErrScopeInvalid = fmt.Errorf("invalid persistence scope")

	// ErrStoreClosed is returned when using a store after Close.
	ErrStoreClosed = fmt.Errorf("store is closed")
)

// Wrap wraps an error with additional context.
// This is useful for adding context to errors as they propagate up the call stack.
// If the error is nil, Wrap returns nil.
//
// Example:
//
//	if err := someOperation(); err != nil {
//	    return errutils.Wrap(err, "failed to perform operation")
//	}
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
// If the error is nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrInvalidOutputFormatWithDetails is a helper to create a wrapped error with the invalid format and valid options.
func ErrInvalidOutputFormatWithDetails(format string) error {
	return fmt.Errorf("%w: '%s', must be one of: text, json", ErrInvalidOutputFormat, format)
}

// ErrInvalidLogLevelWithDetails is a helper to create a wrapped error with the invalid level and valid options.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: debug, info, warn, error", ErrInvalidLogLevel, level)
}

// ErrScopeInvalidWithName creates an error for an unrecognised scope name.
func ErrScopeInvalidWithName(name string) error {
	return fmt.Errorf("%w: %q (want \"global\" or \"provider/<id>\")", ErrScopeInvalid, name)
}

// ErrDescriptorNotFoundWithID creates an error for a descriptor id missing from a catalog.
func ErrDescriptorNotFoundWithID(id string) error {
	return fmt.Errorf("%w: %s", ErrDescriptorNotFound, id)
}

// ErrTransferFailedWithStatus creates an error for a transfer that ended with the given HTTP status.
func ErrTransferFailedWithStatus(status int) error {
	return fmt.Errorf("%w: unexpected status code: %d", ErrTransferFailed, status)
}
