package session

import "errors"

var (
	ErrProviderRequestFailed = errors.New("wallet provider request failed")
	ErrStoreCorrupt          = errors.New("stored session record is corrupt")
	ErrNoSession             = errors.New("no active session")
)
