package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderType tags what a payment order pays for.
type OrderType string

const (
	OrderTypeProduct    OrderType = "PRODUCT"
	OrderTypeWorkshop   OrderType = "WORKSHOP"
	OrderTypeExperience OrderType = "EXPERIENCE"
	OrderTypeCustom     OrderType = "CUSTOM"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationFailed    ReservationStatus = "failed"
	ReservationCancelled ReservationStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

type CapacityKind string

const (
	CapacityExperienceSlot CapacityKind = "experience_slot"
	CapacityWorkshopSlot   CapacityKind = "workshop_slot"
	CapacityProductStock   CapacityKind = "product_stock"
)

// CapacityUnit is one bookable resource: a dated slot or a product's stock.
// Consumed is only ever changed under a row lock.
type CapacityUnit struct {
	ID       int64
	Kind     CapacityKind
	Total    int
	Consumed int
	Active   bool
}

// Reservation is a claim on units of a capacity unit. It is created pending,
// with the units already added to the unit's consumed counter, and moves to
// exactly one terminal state.
type Reservation struct {
	ID             uuid.UUID
	CapacityUnitID int64
	OrderType      OrderType
	Units          int
	Status         ReservationStatus
	PaymentOrderID *uuid.UUID
	UserID         *int64
	FullName       string
	Email          string
	Phone          string
	CreatedAt      time.Time
}

// PaymentOrder is the gateway-agnostic payment lifecycle record. For product
// orders ReservationID is nil and the line-item reservations point back at it.
type PaymentOrder struct {
	ID             uuid.UUID
	OrderType      OrderType
	ReservationID  *uuid.UUID
	AmountPaise    int64
	Status         PaymentStatus
	GatewayOrderID string
	CreatedAt      time.Time
}

// PaymentEvent is one append-only audit row per processed gateway callback.
type PaymentEvent struct {
	ID             int64
	PaymentOrderID uuid.UUID
	Event          string
	Payload        []byte
	CreatedAt      time.Time
}

type Experience struct {
	ID              int64
	Title           string
	PricePaise      int64
	MinParticipants int
	MaxParticipants int
	Active          bool
}

type ExperienceSlot struct {
	ID             int64
	ExperienceID   int64
	CapacityUnitID int64
	Date           time.Time
	StartTime      string
	EndTime        string
}

type Workshop struct {
	ID             int64
	Name           string
	Level          string
	PricePaise     int64
	PricePerPerson bool
	Active         bool
}

type WorkshopSlot struct {
	ID             int64
	WorkshopID     int64
	CapacityUnitID int64
	Date           time.Time
	StartTime      string
	EndTime        string
}

type Product struct {
	ID          int64
	Name        string
	PricePaise  int64
	WeightKg    float64
	StockUnitID int64
	Active      bool
}

type Cart struct {
	ID        int64
	UserID    int64
	Active    bool
	CreatedAt time.Time
}

type CartItem struct {
	ID        int64
	CartID    int64
	ProductID int64
	Quantity  int
}

type CartItemView struct {
	CartItem
	ProductName string
	PricePaise  int64
	WeightKg    float64
	Stock       int
}

type ProductOrder struct {
	ID             uuid.UUID
	PaymentOrderID uuid.UUID
	CartID         *int64
	Status         string
	FullName       string
	Email          string
	Phone          string
	Address        string
	City           string
	Pincode        string
	GSTNumber      string
	SubtotalPaise  int64
	ShippingPaise  int64
	TotalWeightKg  float64
	TotalPaise     int64
	CreatedAt      time.Time
}

type ProductOrderItem struct {
	ID            int64
	OrderID       uuid.UUID
	ProductID     *int64
	ProductName   string
	PricePaise    int64
	Quantity      int
	WeightKg      float64
	ReservationID uuid.UUID
}

type SlotAvailability struct {
	CapacityUnitID int64
	Total          int
	Consumed       int
	Available      int
}
