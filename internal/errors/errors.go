// Package errors defines the sentinel errors shared across packages.
// Callers match them with errors.Is; wrapping adds context.
package errors

import "errors"

// Configuration errors.
var (
	ErrNotConfigured      = errors.New("cloudflare account_id and api_token must be configured")
	ErrMissingAccountHash = errors.New("account hash is not configured")
	ErrMissingImageID     = errors.New("image ID is required")
)

// Local file errors.
var (
	ErrFileNotFound = errors.New("image file not found or not readable")
	ErrFileRead     = errors.New("could not read image file")
)

// Remote API errors.
var (
	ErrRemoteHTTP     = errors.New("HTTP request to Cloudflare failed")
	ErrRemoteResponse = errors.New("could not parse Cloudflare API response")
	ErrRemoteAPI      = errors.New("Cloudflare API error")
	ErrNoImageID      = errors.New("Cloudflare returned no image ID")
)

// Sync errors.
var (
	ErrURLBuildFailed = errors.New("could not build delivery URL")
)

// Data layer errors.
var (
	ErrInvalidMapping  = errors.New("invalid mapping")
	ErrInvalidPreset   = errors.New("invalid preset")
	ErrMappingNotFound = errors.New("mapping not found")
	ErrPresetNotFound  = errors.New("preset not found")
	ErrDuplicatePreset = errors.New("a preset with this name already exists")
	ErrPostNotFound    = errors.New("post not found")
)
