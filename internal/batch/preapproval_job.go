package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/customer"
	"lending-engine/internal/event"
	"lending-engine/internal/pkg/apperrors"
)

// PreapprovalJob scans pending customers and stamps the ones that still
// have credit headroom as preapproved. It runs on a schedule and is safe
// to re-run: already stamped customers are skipped by the repository.
type PreapprovalJob struct {
	customerService customer.CustomerService
	pub             event.Publisher
	logger          *slog.Logger
}

func NewPreapprovalJob(customerSvc customer.CustomerService, pub event.Publisher, logger *slog.Logger) *PreapprovalJob {
	if customerSvc == nil || logger == nil {
		panic("PreapprovalJob dependencies cannot be nil")
	}
	return &PreapprovalJob{
		customerService: customerSvc,
		pub:             pub,
		logger:          logger.With("job", "Preapproval"),
	}
}

func (j *PreapprovalJob) Run(ctx context.Context) error {
	startTime := time.Now()
	j.logger.InfoContext(ctx, "Starting customer preapproval job.")

	pending, err := j.customerService.ListPending(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to list pending customers, aborting job.", slog.Any("error", err))
		return fmt.Errorf("cannot run job, failed to list pending customers: %w", err)
	}
	j.logger.InfoContext(ctx, "Fetched pending customers.", slog.Int("count", len(pending)))

	var preapprovedCount, skippedCount, errorCount int
	now := time.Now().UTC()

	for _, cust := range pending {
		logCtx := j.logger.With(slog.String("externalID", cust.ExternalID))

		if cust.IsPreapproved() {
			skippedCount++
			continue
		}

		balance, err := j.customerService.GetBalance(ctx, cust.ExternalID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				logCtx.WarnContext(ctx, "Customer vanished during preapproval scan", slog.Any("error", err))
			} else {
				logCtx.ErrorContext(ctx, "Failed to compute balance", slog.Any("error", err))
				errorCount++
			}
			continue
		}

		if !balance.AvailableAmount.IsPositive() {
			logCtx.DebugContext(ctx, "No credit headroom, not preapproving.",
				slog.String("availableAmount", balance.AvailableAmount.String()))
			skippedCount++
			continue
		}

		if err := j.customerService.MarkPreapproved(ctx, cust.ID, now); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				// Another run stamped this customer first.
				skippedCount++
				continue
			}
			logCtx.ErrorContext(ctx, "Failed to mark customer preapproved", slog.Any("error", err))
			errorCount++
			continue
		}
		preapprovedCount++

		if j.pub != nil {
			if err := j.pub.PublishCustomerPreapproved(ctx, event.CustomerPreapprovedEvent{
				ExternalID:    cust.ExternalID,
				PreapprovedAt: now,
			}); err != nil {
				logCtx.WarnContext(ctx, "Failed to publish preapproval event", slog.Any("error", err))
			}
		}
	}

	summaryLog := j.logger.With(
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("pending_customers", len(pending)),
		slog.Int("preapproved", preapprovedCount),
		slog.Int("skipped", skippedCount),
		slog.Int("errors_encountered", errorCount),
	)
	if errorCount > 0 {
		summaryLog.WarnContext(ctx, "Customer preapproval job finished with errors.")
		return fmt.Errorf("job completed with %d errors", errorCount)
	}
	summaryLog.InfoContext(ctx, "Customer preapproval job finished successfully.")
	return nil
}
