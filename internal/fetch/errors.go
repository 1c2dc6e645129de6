package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrCannotConnect means no HTTP exchange completed with a server.
	ErrCannotConnect = errors.New("fetch: cannot connect")
	// ErrCannotGetData means the response body could not be read.
	ErrCannotGetData = errors.New("fetch: cannot get data")
	// ErrNoServers means no configured server could be used.
	ErrNoServers = errors.New("fetch: no usable server configured")
)

// ServiceErrorKind classifies an unacceptable response envelope.
type ServiceErrorKind uint8

const (
	BadStatus ServiceErrorKind = iota + 1
	NoLength
	ZeroLength
	WrongType
	PartialContent
	TooLarge
)

func (k ServiceErrorKind) String() string {
	switch k {
	case BadStatus:
		return "bad status"
	case NoLength:
		return "no content length"
	case ZeroLength:
		return "zero content length"
	case WrongType:
		return "wrong content type"
	case PartialContent:
		return "partial content"
	case TooLarge:
		return "content too large"
	default:
		return "unknown"
	}
}

// ServiceError reports a response the service delivered but that cannot be
// used as assistance data.
type ServiceError struct {
	Server string
	Kind   ServiceErrorKind
	Status string // set for BadStatus
	Type   string // set for WrongType
	Want   int64  // declared length
	Got    int64  // bytes read
}

func (e *ServiceError) Error() string {
	switch e.Kind {
	case BadStatus:
		return fmt.Sprintf("fetch %s: %s: %s", e.Server, e.Kind, e.Status)
	case WrongType:
		return fmt.Sprintf("fetch %s: %s %q", e.Server, e.Kind, e.Type)
	case PartialContent, TooLarge:
		return fmt.Sprintf("fetch %s: %s (%d of %d bytes)", e.Server, e.Kind, e.Got, e.Want)
	default:
		return fmt.Sprintf("fetch %s: %s", e.Server, e.Kind)
	}
}
