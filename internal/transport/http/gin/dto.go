package httpgin

import (
	"encoding/json"
	"time"
)

type CreateBookingRequest struct {
	SlotID   int64  `json:"slot_id" binding:"required"`
	People   int    `json:"people" binding:"required,gt=0"`
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	UserID   *int64 `json:"user_id"`
}

type CreateRegistrationRequest struct {
	SlotID       int64  `json:"slot_id" binding:"required"`
	Participants int    `json:"participants" binding:"required,gt=0"`
	FullName     string `json:"full_name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Phone        string `json:"phone"`
	UserID       *int64 `json:"user_id"`
}

type BookingResponse struct {
	ReservationID  string `json:"reservation_id"`
	PaymentOrderID string `json:"payment_order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	AmountPaise    int64  `json:"amount_paise"`
}

type ReleaseResponse struct {
	Status string `json:"status"`
}

type CartItemRequest struct {
	UserID    int64 `json:"user_id" binding:"required"`
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

type CartLineResponse struct {
	ProductID  int64   `json:"product_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	PricePaise int64   `json:"price_paise"`
	WeightKg   float64 `json:"weight_kg"`
	Stock      int     `json:"stock"`
}

type CartResponse struct {
	Items         []CartLineResponse `json:"items"`
	SubtotalPaise int64              `json:"subtotal_paise"`
	ShippingPaise int64              `json:"shipping_paise"`
	TotalPaise    int64              `json:"total_paise"`
}

type CreateOrderRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	FullName  string `json:"full_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone" binding:"required"`
	Address   string `json:"address" binding:"required"`
	City      string `json:"city" binding:"required"`
	Pincode   string `json:"pincode" binding:"required"`
	GSTNumber string `json:"gst_number"`
}

type CreateOrderResponse struct {
	OrderID        string `json:"order_id"`
	PaymentOrderID string `json:"payment_order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	SubtotalPaise  int64  `json:"subtotal_paise"`
	ShippingPaise  int64  `json:"shipping_paise"`
	TotalPaise     int64  `json:"total_paise"`
}

// The two callback requests are decoded by hand from the raw body (the raw
// bytes double as the audit payload), so field presence is checked in the
// handlers rather than with binding tags.
type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

type PaymentFailedRequest struct {
	RazorpayOrderID string `json:"razorpay_order_id"`
	Reason          string `json:"reason"`
}

type PaymentStatusResponse struct {
	Status string `json:"status"`
}

type PaymentEventResponse struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type CreateSlotRequest struct {
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
	Capacity  int    `json:"capacity" binding:"required,gt=0"`
}

type CreateSlotResponse struct {
	SlotID int64 `json:"slot_id"`
}

type ProductResponse struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	PricePaise int64   `json:"price_paise"`
	WeightKg   float64 `json:"weight_kg"`
	Stock      int     `json:"stock"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
}

func parseSlotDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
