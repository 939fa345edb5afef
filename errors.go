package hail

import "errors"

var (
	// Token errors. ErrTokenNotFound covers "never existed", "already
	// redeemed", and "expired" uniformly so callers cannot tell which.
	// It is an authentication failure, not a system error.
	ErrTokenNotFound = errors.New("hail: token not found")

	// Cache errors.
	ErrKeyNotFound = errors.New("hail: cache key not found")
	ErrNoCache     = errors.New("hail: no cache configured")

	// Queue errors.
	ErrNoQueue     = errors.New("hail: no queue configured")
	ErrQueueClosed = errors.New("hail: queue closed")

	// Job errors.
	ErrFamilyNotRegistered = errors.New("hail: job family not registered")
	ErrUnknownJobName      = errors.New("hail: job name not bound in family")
	ErrJobNotFound         = errors.New("hail: job not found")

	// DLQ errors.
	ErrDLQNotFound = errors.New("hail: dlq entry not found")

	// Notification errors.
	ErrNoGateway = errors.New("hail: no delivery gateway configured")
)
