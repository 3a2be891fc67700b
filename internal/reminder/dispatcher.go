package reminder

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/renewd/renewd/internal/db"
	"github.com/renewd/renewd/internal/metrics"
	"github.com/renewd/renewd/internal/sender"
)

// Ledger is the dispatcher's view of the delivery ledger.
type Ledger interface {
	Exists(ctx context.Context, policyID uuid.UUID, milestone string) (bool, error)
	Record(ctx context.Context, rec *db.DeliveryRecord) error
}

// DispatchOutcome tallies one dispatch batch. In-memory only, for logs
// and the manual-trigger response; the ledger is the durable record.
type DispatchOutcome struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Dispatcher sends reminders for one milestone batch: render, send,
// write a ledger row per policy. It never returns an error; every
// per-policy failure lands in the outcome and in the ledger.
type Dispatcher struct {
	ledger Ledger
	sender sender.Sender
	logger *zap.Logger
}

// NewDispatcher creates a new reminder dispatcher
func NewDispatcher(ledger Ledger, snd sender.Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ledger: ledger,
		sender: snd,
		logger: logger,
	}
}

// Dispatch processes every due policy for the milestone. Order is not
// significant; each policy is handled independently so one failure
// never blocks the rest of the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, m Milestone, due []db.PolicySnapshot) DispatchOutcome {
	outcome := DispatchOutcome{Total: len(due)}

	for _, policy := range due {
		switch d.dispatchOne(ctx, m, policy) {
		case db.DeliveryStatusSent:
			outcome.Sent++
		case db.DeliveryStatusFailed:
			outcome.Failed++
		default:
			outcome.Skipped++
		}
	}

	metrics.RecordDispatchOutcome(m.ID, outcome.Sent, outcome.Skipped, outcome.Failed)

	return outcome
}

// statusSkipped is internal to dispatchOne; skips never produce a
// ledger row, so there is no db constant for them.
const statusSkipped = "SKIPPED"

func (d *Dispatcher) dispatchOne(ctx context.Context, m Milestone, policy db.PolicySnapshot) string {
	exists, err := d.ledger.Exists(ctx, policy.ID, m.ID)
	if err != nil {
		// Cannot prove the pair is fresh; treat as failed without a
		// ledger write so a later run can attempt it.
		d.logger.Error("ledger existence check failed",
			zap.Error(err),
			zap.String("policy_number", policy.PolicyNumber),
			zap.String("milestone", m.ID),
		)
		return db.DeliveryStatusFailed
	}
	if exists {
		d.logger.Debug("reminder already attempted, skipping",
			zap.String("policy_number", policy.PolicyNumber),
			zap.String("milestone", m.ID),
		)
		return statusSkipped
	}

	body := RenderMessage(policy, m)

	rec := &db.DeliveryRecord{
		ID:             uuid.New(),
		PolicyID:       policy.ID,
		Milestone:      m.ID,
		RecipientPhone: policy.ClientPhone,
		MessageBody:    body,
	}

	externalID, sendErr := d.sender.Send(ctx, policy.ClientPhone, body)
	if sendErr != nil {
		errMsg := sendErr.Error()
		rec.Status = db.DeliveryStatusFailed
		rec.ErrorMessage = &errMsg
		d.logger.Error("failed to send reminder",
			zap.Error(sendErr),
			zap.String("policy_number", policy.PolicyNumber),
			zap.String("milestone", m.ID),
		)
	} else {
		rec.Status = db.DeliveryStatusSent
		if externalID != "" {
			rec.ExternalMessageID = &externalID
		}
	}

	if err := d.ledger.Record(ctx, rec); err != nil {
		if errors.Is(err, db.ErrDuplicateDelivery) {
			// Another run recorded the pair between our existence check
			// and this insert. The other writer owns the attempt.
			d.logger.Info("duplicate delivery raced in, skipping",
				zap.String("policy_number", policy.PolicyNumber),
				zap.String("milestone", m.ID),
			)
			return statusSkipped
		}
		d.logger.Error("failed to write delivery record",
			zap.Error(err),
			zap.String("policy_number", policy.PolicyNumber),
			zap.String("milestone", m.ID),
			zap.String("send_status", rec.Status),
		)
		return db.DeliveryStatusFailed
	}

	if rec.Status == db.DeliveryStatusSent {
		d.logger.Info("reminder sent",
			zap.String("policy_number", policy.PolicyNumber),
			zap.String("milestone", m.ID),
			zap.String("recipient", policy.ClientPhone),
		)
	}

	return rec.Status
}
