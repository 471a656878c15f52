package services

import "errors"

// Ошибки сервисного слоя, используемые в маппинге HTTP.
var (
	ErrNotFound = errors.New("requested resource not found")

	ErrGameNotFound    = errors.New("game not found")
	ErrResultsNotFound = errors.New("game results not found")

	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
	ErrValidationFailed   = errors.New("validation failed")
	ErrBatchEmpty         = errors.New("operation batch is empty")

	ErrVersionConflict         = errors.New("results were modified concurrently")
	ErrInvalidStatusTransition = errors.New("invalid results status transition")
)
