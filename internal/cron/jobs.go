package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/eligibility"
	"github.com/angelmondragon/marketplace-payouts/internal/orders"
	"github.com/angelmondragon/marketplace-payouts/internal/reconciliation"
	"github.com/angelmondragon/marketplace-payouts/internal/settlement"
	"github.com/angelmondragon/marketplace-payouts/pkg/logger"
)

// Job names, also used as lock keys and metric labels.
const (
	JobOrderAutoApproval = "order-auto-approval"
	JobPayoutEligibility = "payout-eligibility"
	JobDailyBatchPayout  = "daily-batch-payout"
	JobPayoutStatusPoll  = "payout-status-poll"
	JobPayoutRetry       = "payout-retry"
)

type autoApprover interface {
	AutoApproveSweep(ctx context.Context) (orders.SweepResult, error)
}

type eligibilityRefresher interface {
	RefreshEligibility(ctx context.Context) (eligibility.RefreshSummary, error)
}

type dailyBatcher interface {
	ProcessDailyBatchPayouts(ctx context.Context, date time.Time) (settlement.Summary, error)
}

type statusPoller interface {
	PollPending(ctx context.Context) (reconciliation.PollSummary, error)
}

type failedRetrier interface {
	RetryFailed(ctx context.Context) (reconciliation.RetrySummary, error)
}

// JobsParams wire the domain services each scheduled job drives.
type JobsParams struct {
	Logger         *logger.Logger
	Orders         autoApprover
	Eligibility    eligibilityRefresher
	Settlement     dailyBatcher
	Reconciliation interface {
		statusPoller
		failedRetrier
	}
	Location *time.Location
	Now      func() time.Time
}

// Schedules maps each job name to its cron expression.
type Schedules map[string]string

// RegisterJobs builds every payout job and adds it to registry.
func RegisterJobs(registry *Registry, schedules Schedules, params JobsParams) error {
	if registry == nil {
		return fmt.Errorf("registry required")
	}
	if params.Logger == nil {
		return fmt.Errorf("logger required")
	}
	if params.Orders == nil || params.Eligibility == nil || params.Settlement == nil || params.Reconciliation == nil {
		return fmt.Errorf("orders, eligibility, settlement and reconciliation services required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	location := params.Location
	if location == nil {
		location = time.UTC
	}
	logg := params.Logger

	jobs := []Job{
		funcJob{name: JobOrderAutoApproval, run: func(ctx context.Context) error {
			result, err := params.Orders.AutoApproveSweep(ctx)
			logg.Info(logg.WithFields(ctx, map[string]any{
				"scanned":  result.Scanned,
				"approved": result.Approved,
				"skipped":  result.Skipped,
			}), "auto approval sweep finished")
			return err
		}},
		funcJob{name: JobPayoutEligibility, run: func(ctx context.Context) error {
			summary, err := params.Eligibility.RefreshEligibility(ctx)
			logg.Info(logg.WithFields(ctx, map[string]any{
				"scanned":      summary.Scanned,
				"eligible":     summary.Eligible,
				"not_eligible": summary.NotEligible,
			}), "eligibility refresh finished")
			return err
		}},
		funcJob{name: JobDailyBatchPayout, run: func(ctx context.Context) error {
			_, err := params.Settlement.ProcessDailyBatchPayouts(ctx, now().In(location))
			return err
		}},
		funcJob{name: JobPayoutStatusPoll, run: func(ctx context.Context) error {
			summary, err := params.Reconciliation.PollPending(ctx)
			logg.Info(logg.WithFields(ctx, map[string]any{
				"checked": summary.Checked,
				"changed": summary.Changed,
				"failed":  summary.Failed,
			}), "payout status poll finished")
			return err
		}},
		funcJob{name: JobPayoutRetry, run: func(ctx context.Context) error {
			summary, err := params.Reconciliation.RetryFailed(ctx)
			logg.Info(logg.WithFields(ctx, map[string]any{
				"selected": summary.Selected,
				"accepted": summary.Accepted,
				"failed":   summary.Failed,
			}), "payout retry sweep finished")
			return err
		}},
	}

	for _, job := range jobs {
		spec, ok := schedules[job.Name()]
		if !ok || spec == "" {
			return fmt.Errorf("no schedule configured for %s", job.Name())
		}
		if err := registry.Register(spec, job); err != nil {
			return err
		}
	}
	return nil
}

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j funcJob) Name() string { return j.name }

func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }
