package usecase

import "errors"

var (
	ErrDayOpen              = errors.New("trading day already open")
	ErrDayClosed            = errors.New("trading day is closed")
	ErrUnknownAsset         = errors.New("unknown asset")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrLimitNotMarketable   = errors.New("limit price not marketable")
)
