// internal/drivers/errors.go
package drivers

import "errors"

var (
	ErrDriverNotFound = errors.New("no capture driver registered for this source scheme")
	ErrSourceClosed   = errors.New("frame source closed")
	ErrFrameTooLarge  = errors.New("jpeg frame exceeds size limit")
)
