// Package bootstrap wires the payout domain services shared by the api and
// cron-worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-payouts/internal/beneficiaries"
	"github.com/angelmondragon/marketplace-payouts/internal/commission"
	"github.com/angelmondragon/marketplace-payouts/internal/eligibility"
	"github.com/angelmondragon/marketplace-payouts/internal/ledger"
	"github.com/angelmondragon/marketplace-payouts/internal/notify"
	"github.com/angelmondragon/marketplace-payouts/internal/orders"
	"github.com/angelmondragon/marketplace-payouts/internal/reconciliation"
	"github.com/angelmondragon/marketplace-payouts/internal/returns"
	"github.com/angelmondragon/marketplace-payouts/internal/settlement"
	"github.com/angelmondragon/marketplace-payouts/pkg/config"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
	"github.com/angelmondragon/marketplace-payouts/pkg/metrics"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
	"github.com/angelmondragon/marketplace-payouts/pkg/pubsub"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *gorm.DB
	Tx         txRunner
	Provider   payoutgateway.Client
	Notifier   notify.Notifier
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Payouts holds every service in the order to settlement pipeline.
type Payouts struct {
	OrderRepo      orders.Repository
	Orders         orders.Service
	Returns        returns.Service
	Eligibility    eligibility.Service
	Beneficiaries  beneficiaries.Service
	Ledger         ledger.Service
	Settlement     settlement.Service
	Reconciliation reconciliation.Service
	Metrics        *metrics.SettlementMetrics
}

func NewPayouts(p Params) (*Payouts, error) {
	switch {
	case p.Config == nil:
		return nil, fmt.Errorf("config required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case p.DB == nil || p.Tx == nil:
		return nil, fmt.Errorf("database required")
	case p.Provider == nil:
		return nil, fmt.Errorf("payout provider required")
	}
	cfg := p.Config

	engine, err := commission.NewEngine(cfg.Payout.CommissionRate(), cfg.Payout.GSTRate())
	if err != nil {
		return nil, fmt.Errorf("commission engine: %w", err)
	}
	evaluator := eligibility.NewEvaluator(engine, cfg.Payout.MinimumAmount(), cfg.Payout.PayoutDelay())

	var settlementMetrics *metrics.SettlementMetrics
	if p.Registerer != nil {
		settlementMetrics = metrics.NewSettlementMetrics(p.Registerer)
	}

	orderRepo := orders.NewRepository(p.DB)
	payoutRepo := settlement.NewRepository(p.DB)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(p.DB))
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        p.Tx,
		Ledger:    ledgerSvc,
		Notifier:  p.Notifier,
		Logger:    p.Logger,
		BatchSize: cfg.Order.SweepBatchSize,
		Now:       p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	returnSvc, err := returns.NewService(returns.ServiceParams{
		Orders:   orderRepo,
		Tx:       p.Tx,
		Ledger:   ledgerSvc,
		Notifier: p.Notifier,
		Logger:   p.Logger,
		Window:   cfg.Order.ReturnWindow,
		Now:      p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("returns service: %w", err)
	}

	eligibilitySvc, err := eligibility.NewService(eligibility.ServiceParams{
		Orders:    orderRepo,
		Evaluator: evaluator,
		Logger:    p.Logger,
		BatchSize: cfg.Order.SweepBatchSize,
		Now:       p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("eligibility service: %w", err)
	}

	beneficiarySvc, err := beneficiaries.NewService(beneficiaries.ServiceParams{
		Repo:     beneficiaries.NewRepository(p.DB),
		Provider: p.Provider,
		Logger:   p.Logger,
		Now:      p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("beneficiaries service: %w", err)
	}

	settlementSvc, err := settlement.NewService(settlement.ServiceParams{
		Orders:         orderRepo,
		Payouts:        payoutRepo,
		Tx:             p.Tx,
		Evaluator:      evaluator,
		Beneficiaries:  beneficiarySvc,
		Provider:       p.Provider,
		Notifier:       p.Notifier,
		Metrics:        settlementMetrics,
		Logger:         p.Logger,
		TransferPrefix: cfg.Payout.TransferPrefix,
		MaxAttempts:    cfg.Payout.MaxAttempts,
		SubmitTimeout:  cfg.Payout.SubmitTimeout,
		PendingGrace:   cfg.Payout.PendingGrace,
		Now:            p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement service: %w", err)
	}

	reconciliationSvc, err := reconciliation.NewService(reconciliation.ServiceParams{
		Orders:        orderRepo,
		Payouts:       payoutRepo,
		Settlement:    settlementSvc,
		Tx:            p.Tx,
		Ledger:        ledgerSvc,
		Provider:      p.Provider,
		Notifier:      p.Notifier,
		Metrics:       settlementMetrics,
		Logger:        p.Logger,
		WebhookSecret: cfg.Provider.WebhookSecret,
		MaxAttempts:   cfg.Payout.MaxAttempts,
		BatchSize:     cfg.Order.SweepBatchSize,
		PendingGrace:  cfg.Payout.PendingGrace,
		Now:           p.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciliation service: %w", err)
	}

	return &Payouts{
		OrderRepo:      orderRepo,
		Orders:         orderSvc,
		Returns:        returnSvc,
		Eligibility:    eligibilitySvc,
		Beneficiaries:  beneficiarySvc,
		Ledger:         ledgerSvc,
		Settlement:     settlementSvc,
		Reconciliation: reconciliationSvc,
		Metrics:        settlementMetrics,
	}, nil
}

// NewNotifier publishes to Pub/Sub when a topic is configured and drops
// events otherwise. The returned close func is always safe to call.
func NewNotifier(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notify.Notifier, func() error, error) {
	if cfg.PubSub.NotificationTopic == "" {
		if logg != nil {
			logg.Warn(ctx, "no notification topic configured, notifications are dropped")
		}
		return notify.Noop{}, func() error { return nil }, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	notifier, err := notify.NewPubSubNotifier(client.NotificationPublisher(), cfg.PubSub.PublishTimeout)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return notifier, client.Close, nil
}
