package service

import (
	"log/slog"

	"github.com/bashostudio/basho-go/internal/gateway"
	"github.com/bashostudio/basho-go/internal/notify"
	postgres "github.com/bashostudio/basho-go/internal/repository/postgres"
	redis "github.com/bashostudio/basho-go/internal/repository/redis"
	"github.com/bashostudio/basho-go/internal/service/booking"
	"github.com/bashostudio/basho-go/internal/service/catalog"
	"github.com/bashostudio/basho-go/internal/service/checkout"
	"github.com/bashostudio/basho-go/internal/service/reaper"
	"github.com/bashostudio/basho-go/internal/service/settlement"
)

type Services struct {
	Booking    *booking.Service
	Checkout   *checkout.Service
	Settlement *settlement.Service
	Catalog    *catalog.Service
	Reaper     *reaper.Service
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.SlotsPubSub,
	limiter *redis.SlidingWindowLimiter,
	gw gateway.PaymentGateway,
	notifier *notify.Notifier,
	log *slog.Logger,
) *Services {
	return &Services{
		Booking:    booking.New(store, cache, pubsub, limiter, gw),
		Checkout:   checkout.New(store, cache, pubsub, gw),
		Settlement: settlement.New(store, cache, pubsub, gw, notifier, log),
		Catalog:    catalog.New(store, cache, pubsub),
		Reaper:     reaper.New(store, cache, pubsub, notifier, log),
	}
}
