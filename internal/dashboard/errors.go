package dashboard

import "errors"

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrInvalidQueueName = errors.New("invalid queue name")
	ErrInvalidQuery     = errors.New("invalid job query")
)
