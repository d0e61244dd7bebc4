package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrMessageNotFound is returned when a message ID cannot be found in the store.
var ErrMessageNotFound = errors.New("message not found")

// ErrSuggestionsNotFound is returned when no suggestions exist for a message.
var ErrSuggestionsNotFound = errors.New("suggestions not found")

// ErrInvalidRequest is returned when a chat request is missing required fields.
var ErrInvalidRequest = errors.New("invalid request")
