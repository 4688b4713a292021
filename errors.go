package wiremux

import "errors"

// ErrNotRegistered reports a send for a message type with no registry entry.
var ErrNotRegistered = errors.New("message type is not registered")

// ErrValidateFailed reports an inbound message rejected by its channel validator.
var ErrValidateFailed = errors.New("message failed validation")

// ErrCanceled reports an awaiter withdrawn before a message matched.
var ErrCanceled = errors.New("awaiter canceled")

// ErrClosed reports a transmit on a transport that is no longer usable.
var ErrClosed = errors.New("transport is closed")
