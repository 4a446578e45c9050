package services

import "errors"

var (
	ErrUserNotFound   = errors.New("user progress record not found")
	ErrInvalidPoints  = errors.New("points must be a positive integer")
	ErrUnknownBadge   = errors.New("unknown badge id")
	ErrUnknownReason  = errors.New("unknown award reason")
	ErrInvalidCatalog = errors.New("invalid gamification catalog")
	ErrInvalidDay     = errors.New("invalid day, expected YYYY-MM-DD")
	ErrActionNotFound = errors.New("daily action not found")
)
