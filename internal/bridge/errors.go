package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrInactive        = errors.New("bridge: not activated")
	ErrClosed          = errors.New("bridge: channel closed")
	ErrMalformed       = errors.New("bridge: malformed response")
	ErrHostRejected    = errors.New("bridge: host rejected request")
	ErrMalformedURI    = errors.New("bridge: malformed content uri")
	ErrTransportClosed = errors.New("bridge: transport closed")
)

// HostCommunicationError reports a failed exchange with the host outside of
// content resolution: the handshake or the figure descriptor request.
type HostCommunicationError struct {
	Op  string
	Err error
}

func (e *HostCommunicationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *HostCommunicationError) Unwrap() error { return e.Err }

// ResourceResolutionError reports that a content identifier could not be
// turned into a fetchable locator.
type ResourceResolutionError struct {
	URI string
	Err error
}

func (e *ResourceResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.URI, e.Err)
}

func (e *ResourceResolutionError) Unwrap() error { return e.Err }
