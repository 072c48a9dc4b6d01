package catalog

import "errors"

var (
	ErrExperienceNotFound = errors.New("experience not found")
	ErrWorkshopNotFound   = errors.New("workshop not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrSlotNotFound       = errors.New("slot not found")
	ErrInvalidSlot        = errors.New("invalid slot definition")
)
