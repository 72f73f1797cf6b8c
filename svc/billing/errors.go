package billing

import "errors"

var (
	ErrOutcomeConflict    = errors.New("charge attempt already resolved with a different outcome")
	ErrFanNotFound        = errors.New("fan not found")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrUnsupportedWebhook = errors.New("unsupported webhook event")
	ErrMalformedWebhook   = errors.New("malformed webhook payload")
	ErrIntentFailed       = errors.New("failed to execute intent")
	ErrInvalidConfig      = errors.New("invalid billing config")
)
