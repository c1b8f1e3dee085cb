package config

import "errors"

var (
	// ErrInvalidConfig marks a configuration that loaded but cannot run the panel.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a failure to read a configuration source.
	ErrLoadConfig = errors.New("load config failed")
	// ErrUnknownStore is wrapped when the store setting names no supported backend.
	ErrUnknownStore = errors.New("unknown store")
)
