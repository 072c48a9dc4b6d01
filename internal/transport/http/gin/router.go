package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bashostudio/basho-go/internal/repository"
	redisrepo "github.com/bashostudio/basho-go/internal/repository/redis"
	"github.com/bashostudio/basho-go/internal/service"
	"github.com/bashostudio/basho-go/internal/service/booking"
	"github.com/bashostudio/basho-go/internal/service/catalog"
	"github.com/bashostudio/basho-go/internal/service/checkout"
	"github.com/bashostudio/basho-go/internal/service/settlement"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/experiences/:id/slots", handleListExperienceSlots(svcs))
	r.GET("/workshops/:id/slots", handleListWorkshopSlots(svcs))
	r.GET("/slots/:id/availability", handleGetAvailability(svcs))
	r.GET("/products/:id", handleGetProduct(svcs))

	r.POST("/experiences/:id/bookings", handleCreateBooking(svcs, idem))
	r.POST("/workshops/:id/registrations", handleCreateRegistration(svcs, idem))
	r.POST("/bookings/:id/release", handleReleaseBooking(svcs))

	r.GET("/cart", handleGetCart(svcs))
	r.POST("/cart/items", handleAddCartItem(svcs))
	r.DELETE("/cart/items/:product_id", handleRemoveCartItem(svcs))
	r.DELETE("/cart", handleClearCart(svcs))

	r.POST("/orders", handleCreateOrder(svcs, idem))

	r.POST("/payments/verify", handleVerifyPayment(svcs))
	r.POST("/payments/failed", handlePaymentFailed(svcs))

	// Admin API
	// TODO: add admin auth middleware once the auth service lands
	admin := r.Group("/admin")
	{
		admin.POST("/experiences/:id/slots", handleCreateExperienceSlot(svcs))
		admin.POST("/workshops/:id/slots", handleCreateWorkshopSlot(svcs))
		admin.GET("/payments/:id/events", handleListPaymentEvents(svcs))
	}

	return r
}

func handleListExperienceSlots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		slots, err := svcs.Catalog.ListExperienceSlots(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, slots, "public, max-age=15", true)
	}
}

func handleListWorkshopSlots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		slots, err := svcs.Catalog.ListWorkshopSlots(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, slots, "public, max-age=15", true)
	}
}

func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Catalog.Availability(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, gin.H{
			"capacity_unit_id": a.CapacityUnitID,
			"total":            a.Total,
			"available":        a.Available,
		}, "public, max-age=5", true)
	}
}

func handleGetProduct(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		p, stock, err := svcs.Catalog.GetProduct(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, ProductResponse{
			ID:         p.ID,
			Name:       p.Name,
			PricePaise: p.PricePaise,
			WeightKg:   p.WeightKg,
			Stock:      stock,
		}, "public, max-age=15", true)
	}
}

func handleCreateBooking(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		experienceID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		done, key := beginIdempotent(c, idem, redisrepo.KeyIdemBooking)
		if done {
			return
		}

		res, err := svcs.Booking.CreateExperienceBooking(c.Request.Context(), booking.ExperienceBookingInput{
			ExperienceID: experienceID,
			SlotID:       req.SlotID,
			People:       req.People,
			FullName:     req.FullName,
			Email:        req.Email,
			Phone:        req.Phone,
			UserID:       req.UserID,
		}, "ip:"+c.ClientIP())
		if err != nil {
			releaseIdempotent(c, idem, key)
			respondErr(c, err)
			return
		}

		finishIdempotent(c, idem, key, bookingResponse(res))
	}
}

func handleCreateRegistration(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		workshopID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateRegistrationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		done, key := beginIdempotent(c, idem, redisrepo.KeyIdemBooking)
		if done {
			return
		}

		res, err := svcs.Booking.CreateWorkshopRegistration(c.Request.Context(), booking.WorkshopRegistrationInput{
			WorkshopID:   workshopID,
			SlotID:       req.SlotID,
			Participants: req.Participants,
			FullName:     req.FullName,
			Email:        req.Email,
			Phone:        req.Phone,
			UserID:       req.UserID,
		}, "ip:"+c.ClientIP())
		if err != nil {
			releaseIdempotent(c, idem, key)
			respondErr(c, err)
			return
		}

		finishIdempotent(c, idem, key, bookingResponse(res))
	}
}

func handleReleaseBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid reservation id")
			return
		}
		outcome, err := svcs.Booking.Cancel(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		status := "cancelled"
		if outcome == booking.AlreadyTerminal {
			status = "already_resolved"
		}
		c.JSON(http.StatusOK, ReleaseResponse{Status: status})
	}
}

func handleGetCart(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseUserIDQuery(c)
		if !ok {
			return
		}
		view, err := svcs.Checkout.GetCart(c.Request.Context(), userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, cartResponse(view))
	}
}

func handleAddCartItem(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		view, err := svcs.Checkout.AddItem(c.Request.Context(), req.UserID, req.ProductID, req.Quantity)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, cartResponse(view))
	}
}

func handleRemoveCartItem(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseUserIDQuery(c)
		if !ok {
			return
		}
		productID, ok := parseInt64Param(c, "product_id")
		if !ok {
			return
		}
		view, err := svcs.Checkout.RemoveItem(c.Request.Context(), userID, productID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, cartResponse(view))
	}
}

func handleClearCart(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseUserIDQuery(c)
		if !ok {
			return
		}
		if err := svcs.Checkout.ClearCart(c.Request.Context(), userID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleCreateOrder(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		done, key := beginIdempotent(c, idem, redisrepo.KeyIdemCheckout)
		if done {
			return
		}

		res, err := svcs.Checkout.CreateOrder(c.Request.Context(), checkout.OrderInput{
			UserID:    req.UserID,
			FullName:  req.FullName,
			Email:     req.Email,
			Phone:     req.Phone,
			Address:   req.Address,
			City:      req.City,
			Pincode:   req.Pincode,
			GSTNumber: req.GSTNumber,
		})
		if err != nil {
			releaseIdempotent(c, idem, key)
			respondErr(c, err)
			return
		}

		finishIdempotent(c, idem, key, CreateOrderResponse{
			OrderID:        res.OrderID.String(),
			PaymentOrderID: res.PaymentOrderID.String(),
			GatewayOrderID: res.GatewayOrderID,
			SubtotalPaise:  res.Quote.SubtotalPaise,
			ShippingPaise:  res.Quote.ShippingPaise,
			TotalPaise:     res.Quote.TotalPaise,
		})
	}
}

func handleVerifyPayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			badRequest(c, "cannot read body")
			return
		}
		var req VerifyPaymentRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.RazorpayOrderID == "" || req.RazorpayPaymentID == "" || req.RazorpaySignature == "" {
			badRequest(c, "missing payment fields")
			return
		}

		_, err = svcs.Settlement.Settle(
			c.Request.Context(),
			req.RazorpayOrderID,
			req.RazorpayPaymentID,
			req.RazorpaySignature,
			raw,
		)
		if err != nil {
			switch {
			case errors.Is(err, settlement.ErrSignatureInvalid):
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "signature verification failed"})
			case errors.Is(err, settlement.ErrOrderNotFound):
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "payment order not found"})
			case errors.Is(err, settlement.ErrReconciliationRequired):
				// The money is captured but the order needs an operator.
				c.JSON(http.StatusAccepted, PaymentStatusResponse{Status: "under_review"})
			default:
				respondErr(c, err)
			}
			return
		}

		c.JSON(http.StatusOK, PaymentStatusResponse{Status: "paid"})
	}
}

func handlePaymentFailed(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			badRequest(c, "cannot read body")
			return
		}
		var req PaymentFailedRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.RazorpayOrderID == "" {
			badRequest(c, "missing razorpay_order_id")
			return
		}

		outcome, err := svcs.Settlement.SettleFailure(c.Request.Context(), req.RazorpayOrderID, req.Reason, raw)
		if err != nil {
			if errors.Is(err, settlement.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "payment order not found"})
				return
			}
			respondErr(c, err)
			return
		}

		status := "failed"
		if outcome == settlement.AlreadyPaid {
			status = "paid"
		}
		c.JSON(http.StatusOK, PaymentStatusResponse{Status: status})
	}
}

func handleListPaymentEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid payment order id")
			return
		}

		events, err := svcs.Settlement.Events(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, settlement.ErrOrderNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "payment order not found"})
				return
			}
			respondErr(c, err)
			return
		}

		resp := make([]PaymentEventResponse, 0, len(events))
		for _, e := range events {
			resp = append(resp, PaymentEventResponse{
				Event:     e.Event,
				Payload:   json.RawMessage(e.Payload),
				CreatedAt: e.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleCreateExperienceSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateSlotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		date, err := parseSlotDate(req.Date)
		if err != nil {
			badRequest(c, "invalid date (YYYY-MM-DD)")
			return
		}
		slotID, err := svcs.Catalog.CreateExperienceSlot(c.Request.Context(), id, catalog.SlotInput{
			Date:      date,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Capacity:  req.Capacity,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateSlotResponse{SlotID: slotID})
	}
}

func handleCreateWorkshopSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateSlotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		date, err := parseSlotDate(req.Date)
		if err != nil {
			badRequest(c, "invalid date (YYYY-MM-DD)")
			return
		}
		slotID, err := svcs.Catalog.CreateWorkshopSlot(c.Request.Context(), id, catalog.SlotInput{
			Date:      date,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Capacity:  req.Capacity,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateSlotResponse{SlotID: slotID})
	}
}

// --- Idempotency ---

// beginIdempotent replays the stored response for a repeated Idempotency-Key
// or acquires the in-progress lock. Reports done=true when a response has
// already been written.
func beginIdempotent(c *gin.Context, idem *redisrepo.IdempotencyStore, keyFn func(string) string) (done bool, key string) {
	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idem == nil || idemKey == "" {
		return false, ""
	}

	key = keyFn(idemKey)

	if payload, ok, _ := idem.GetResult(c.Request.Context(), key); ok {
		c.Header("Idempotency-Key", idemKey)
		c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
		return true, key
	}

	locked, err := idem.AcquireLock(c.Request.Context(), key, 60*time.Second)
	if err != nil {
		respondErr(c, err)
		return true, key
	}
	if !locked {
		if payload, ok, _ := idem.GetResult(c.Request.Context(), key); ok {
			c.Header("Idempotency-Key", idemKey)
			c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
			return true, key
		}
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
		return true, key
	}

	return false, key
}

func releaseIdempotent(c *gin.Context, idem *redisrepo.IdempotencyStore, key string) {
	if idem != nil && key != "" {
		_ = idem.Release(c.Request.Context(), key)
	}
}

func finishIdempotent(c *gin.Context, idem *redisrepo.IdempotencyStore, key string, resp any) {
	if idem != nil && key != "" {
		if b, err := json.Marshal(resp); err == nil {
			_ = idem.SaveResult(c.Request.Context(), key, string(b))
		}
		c.Header("Idempotency-Key", c.GetHeader("Idempotency-Key"))
	}
	c.JSON(http.StatusCreated, resp)
}

// --- Helpers ---

func bookingResponse(res *booking.Result) BookingResponse {
	return BookingResponse{
		ReservationID:  res.ReservationID.String(),
		PaymentOrderID: res.PaymentOrderID.String(),
		GatewayOrderID: res.GatewayOrderID,
		AmountPaise:    res.AmountPaise,
	}
}

func cartResponse(view *checkout.CartView) CartResponse {
	resp := CartResponse{
		Items:         make([]CartLineResponse, 0, len(view.Items)),
		SubtotalPaise: view.Quote.SubtotalPaise,
		ShippingPaise: view.Quote.ShippingPaise,
		TotalPaise:    view.Quote.TotalPaise,
	}
	for _, it := range view.Items {
		resp.Items = append(resp.Items, CartLineResponse{
			ProductID:  it.ProductID,
			Name:       it.ProductName,
			Quantity:   it.Quantity,
			PricePaise: it.PricePaise,
			WeightKg:   it.WeightKg,
			Stock:      it.Stock,
		})
	}
	return resp
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUserIDQuery(c *gin.Context) (int64, bool) {
	v, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid user_id")
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var bookingValidation *booking.ValidationError
	var checkoutValidation *checkout.ValidationError
	var capacityErr *booking.CapacityExceededError
	var stockErr *checkout.OutOfStockError

	switch {
	// bad input
	case errors.As(err, &bookingValidation):
		badRequest(c, bookingValidation.Msg)
	case errors.As(err, &checkoutValidation):
		badRequest(c, checkoutValidation.Msg)
	case errors.Is(err, checkout.ErrCartEmpty):
		badRequest(c, "cart is empty")
	case errors.Is(err, catalog.ErrInvalidSlot):
		badRequest(c, "invalid slot definition")

	// not found
	case errors.Is(err, booking.ErrExperienceNotFound),
		errors.Is(err, catalog.ErrExperienceNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "experience not found"})
	case errors.Is(err, booking.ErrWorkshopNotFound),
		errors.Is(err, catalog.ErrWorkshopNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "workshop not found"})
	case errors.Is(err, booking.ErrSlotNotFound),
		errors.Is(err, catalog.ErrSlotNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "slot not found"})
	case errors.Is(err, booking.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "reservation not found"})
	case errors.Is(err, checkout.ErrProductNotFound),
		errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "product not found"})

	// capacity conflicts carry the remaining units
	case errors.As(err, &capacityErr):
		avail := capacityErr.Available
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not enough capacity", Available: &avail})
	case errors.As(err, &stockErr):
		avail := stockErr.Available
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not enough stock", Available: &avail})
	case errors.Is(err, repository.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not enough capacity"})

	// rate limiting
	case errors.Is(err, booking.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})

	// gateway
	case errors.Is(err, booking.ErrGateway), errors.Is(err, checkout.ErrGateway):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment gateway unavailable"})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
