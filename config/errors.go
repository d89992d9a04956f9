package config

import "errors"

var (
	// ErrMissingEnv is returned when the config file references an unset
	// environment variable.
	ErrMissingEnv = errors.New("config: missing required environment variables")

	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("config: invalid")
)
