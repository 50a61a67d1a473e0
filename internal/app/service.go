/**
 * @description
 * This file contains the core Service for the matching and settlement engine.
 * The Service orchestrates the match allocator, the match lifecycle state
 * machine, and the settlement projections (tax, payment schedule, payouts),
 * coordinating between the database repository and the event producer.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - internal/config, internal/domain, internal/store: Config, models, data access.
 * - pkg/rabbitmq: Best-effort event publishing.
 */

package app

import (
	"context"
	"time"

	"github.com/Startups-dev/Pixiedvc-sub000/internal/config"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/domain"
	"github.com/Startups-dev/Pixiedvc-sub000/internal/store"
	"github.com/Startups-dev/Pixiedvc-sub000/pkg/pointchart"
	"github.com/Startups-dev/Pixiedvc-sub000/pkg/rabbitmq"
)

// Settings carries the engine's product configuration in the units the
// business logic works in.
type Settings struct {
	OfferWindow              time.Duration
	BatchLimit               int
	ExpiringSoonWindow       time.Duration
	PlatformFeeCentsPerPoint int64
	DepositBps               int64
	BalanceDueLead           time.Duration
	PayoutStages             []domain.PayoutStageDef
}

// SettingsFromConfig converts the env-level config into engine settings.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		OfferWindow:              time.Duration(cfg.MatchOfferWindowHours) * time.Hour,
		BatchLimit:               cfg.MatcherBatchLimit,
		ExpiringSoonWindow:       time.Duration(cfg.MatchExpiringSoonHours) * time.Hour,
		PlatformFeeCentsPerPoint: cfg.PlatformFeeCentsPerPoint,
		DepositBps:               cfg.DepositBps,
		BalanceDueLead:           time.Duration(cfg.BalanceDueDaysBeforeCheckIn) * 24 * time.Hour,
		PayoutStages:             cfg.PayoutStages,
	}
}

// Service provides the business logic of the engine.
type Service struct {
	repo      store.Repository
	producer  rabbitmq.Publisher
	settings  Settings
	sweepLock SweepLock
	pricing   PricingClient
}

// PricingClient quotes a stay from the point-chart service.
type PricingClient interface {
	GetQuote(ctx context.Context, resortCode, roomType string, checkIn, checkOut time.Time) (*pointchart.Quote, error)
}

// NewService creates a new engine service instance. The producer may be nil;
// event publishing is best-effort and never a prerequisite for committed
// state.
func NewService(repo store.Repository, producer rabbitmq.Publisher, settings Settings) *Service {
	if settings.BatchLimit <= 0 {
		settings.BatchLimit = 100
	}
	if settings.OfferWindow <= 0 {
		settings.OfferWindow = 72 * time.Hour
	}
	return &Service{
		repo:     repo,
		producer: producer,
		settings: settings,
	}
}

// SetSweepLock installs an optional distributed lock used to single-flight
// full allocator sweeps across instances. Correctness does not depend on it;
// commit-time re-checks already prevent double allocation.
func (s *Service) SetSweepLock(lock SweepLock) {
	s.sweepLock = lock
}

// SetPricingClient installs an optional point-chart client used to price
// bookings whose guest total was never computed.
func (s *Service) SetPricingClient(client PricingClient) {
	s.pricing = client
}
