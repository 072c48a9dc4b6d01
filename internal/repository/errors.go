package repository

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrUnitInactive     = errors.New("capacity unit inactive")
	ErrAlreadyTerminal  = errors.New("reservation already terminal")
	ErrAlreadyPaid      = errors.New("payment order already paid")
	ErrAlreadyAttached  = errors.New("gateway order id already attached")
)
