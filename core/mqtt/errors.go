package mqtt

import "errors"

// ErrAckTimeout means the bus did not acknowledge an order in time.
var ErrAckTimeout = errors.New("bus did not acknowledge order before timeout")
