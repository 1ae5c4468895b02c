package unsubscribe

import "errors"

var (
	ErrInvalidToken = errors.New("invalid unsubscribe token")
	ErrExpiredToken = errors.New("unsubscribe token expired")
	ErrNotFound     = errors.New("not found")
)
