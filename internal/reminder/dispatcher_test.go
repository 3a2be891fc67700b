package reminder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/renewd/renewd/internal/db"
)

// fakeLedger is an in-memory ledger keyed by (policy, milestone).
type fakeLedger struct {
	records     map[string]*db.DeliveryRecord
	existsErr   error
	recordErr   error
	forceRace   bool // Exists returns false but Record reports a duplicate
	recordCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*db.DeliveryRecord)}
}

func ledgerKey(policyID uuid.UUID, milestone string) string {
	return policyID.String() + "/" + milestone
}

func (f *fakeLedger) Exists(ctx context.Context, policyID uuid.UUID, milestone string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	if f.forceRace {
		return false, nil
	}
	_, ok := f.records[ledgerKey(policyID, milestone)]
	return ok, nil
}

func (f *fakeLedger) Record(ctx context.Context, rec *db.DeliveryRecord) error {
	f.recordCalls++
	if f.recordErr != nil {
		return f.recordErr
	}
	key := ledgerKey(rec.PolicyID, rec.Milestone)
	if _, ok := f.records[key]; ok {
		return fmt.Errorf("policy %s: %w", rec.PolicyID, db.ErrDuplicateDelivery)
	}
	rec.CreatedAt = time.Now()
	f.records[key] = rec
	return nil
}

// fakeSender fails for phone numbers listed in failFor.
type fakeSender struct {
	failFor map[string]error
	sent    []string
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: make(map[string]error)}
}

func (f *fakeSender) Send(ctx context.Context, phone, body string) (string, error) {
	if err, ok := f.failFor[phone]; ok {
		return "", err
	}
	f.sent = append(f.sent, phone)
	return "ext-" + phone, nil
}

func policyWith(number, phone string) db.PolicySnapshot {
	return db.PolicySnapshot{
		ID:           uuid.New(),
		PolicyNumber: number,
		PolicyType:   "Motor",
		ExpiryDate:   time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC),
		Premium:      "4200.00",
		ClientName:   "Ravi Kumar",
		ClientPhone:  phone,
		Status:       db.PolicyStatusActive,
	}
}

var sevenDays = Milestone{ID: MilestoneSevenDays, LeadDays: 7}

func TestDispatch_SendsAndRecords(t *testing.T) {
	ledger := newFakeLedger()
	snd := newFakeSender()
	d := NewDispatcher(ledger, snd, zap.NewNop())

	policy := policyWith("POL-100", "+911111111111")
	outcome := d.Dispatch(context.Background(), sevenDays, []db.PolicySnapshot{policy})

	if outcome.Sent != 1 || outcome.Skipped != 0 || outcome.Failed != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	rec := ledger.records[ledgerKey(policy.ID, MilestoneSevenDays)]
	if rec == nil {
		t.Fatal("expected a ledger record")
	}
	if rec.Status != db.DeliveryStatusSent {
		t.Errorf("status = %s, want SENT", rec.Status)
	}
	if rec.ExternalMessageID == nil || *rec.ExternalMessageID == "" {
		t.Error("expected external message id on sent record")
	}
	if rec.RecipientPhone != "+911111111111" {
		t.Errorf("recipient = %s", rec.RecipientPhone)
	}
}

func TestDispatch_SkipsExistingRecord(t *testing.T) {
	ledger := newFakeLedger()
	snd := newFakeSender()
	d := NewDispatcher(ledger, snd, zap.NewNop())

	policy := policyWith("POL-100", "+911111111111")

	first := d.Dispatch(context.Background(), sevenDays, []db.PolicySnapshot{policy})
	second := d.Dispatch(context.Background(), sevenDays, []db.PolicySnapshot{policy})

	if first.Sent != 1 {
		t.Fatalf("first run: %+v", first)
	}
	if second.Sent != 0 || second.Skipped != 1 || second.Failed != 0 {
		t.Fatalf("second run should only skip: %+v", second)
	}
	if len(snd.sent) != 1 {
		t.Fatalf("sender invoked %d times, want 1", len(snd.sent))
	}
	if len(ledger.records) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(ledger.records))
	}
}

func TestDispatch_FailedAttemptNotRetried(t *testing.T) {
	ledger := newFakeLedger()
	snd := newFakeSender()
	snd.failFor["+912222222222"] = errors.New("gateway timeout")
	d := NewDispatcher(ledger, snd, zap.NewNop())

	policy := policyWith("POL-200", "+912222222222")

	first := d.Dispatch(context.Background(), sevenDays, []db.PolicySnapshot{policy})
	if first.Failed != 1 {
		t.Fatalf("first run: %+v", first)
	}

	rec := ledger.records[ledgerKey(policy.ID, MilestoneSevenDays)]
	if rec == nil || rec.Status != db.DeliveryStatusFailed {
		t.Fatalf("expected FAILED record, got %+v", rec)
	}
	if rec.ErrorMessage == nil || *rec.ErrorMessage != "gateway timeout" {
		t.Errorf("expected error detail, got %v", rec.ErrorMessage)
	}

	// The gateway recovers, but a FAILED row still suppresses resends.
	delete(snd.failFor, "+912222222222")
	second := d.Dispatch(context.Background(), sevenDays, []db.PolicySnapshot{policy})
	if second.Skipped != 1 || second.Sent != 0 {
		t.Fatalf("second run should skip the failed pair: %+v", second)
	}
}

func TestDispatch_SendFailureDoesNotBlockBatch(t *testing.T) {
	ledger := newFakeLedger()
	snd := newFakeSender()
	snd.failFor["+912222222222"] = errors.New("number unreachable")
	d := NewDispatcher(ledger, snd, zap.NewNop())

	failing := policyWith("POL-A", "+912222222222")
	healthy := policyWith("POL-B", "+913333333333")

	outcome := d.Dispatch(context.Background(), sevenDays, []db.PolicySnapshot{failing, healthy})

	if outcome.Total != 2 || outcome.Sent != 1 || outcome.Failed != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	if rec := ledger.records[ledgerKey(healthy.ID, MilestoneSevenDays)]; rec == nil || rec.Status != db.DeliveryStatusSent {
		t.Error("healthy policy should have a SENT record")
	}
	if rec := ledger.records[ledgerKey(failing.ID, MilestoneSevenDays)]; rec == nil || rec.Status != db.DeliveryStatusFailed {
		t.Error("failing policy should have a FAILED record")
	}
}

func TestDispatch_ConflictRaceCountsAsSkipped(t *testing.T) {
	ledger := newFakeLedger()
	ledger.forceRace = true
	snd := newFakeSender()
	d := NewDispatcher(ledger, snd, zap.NewNop())

	policy := policyWith("POL-100", "+911111111111")
	// Pre-seed the record the race would have written.
	ledger.records[ledgerKey(policy.ID, MilestoneSevenDays)] = &db.DeliveryRecord{
		PolicyID:  policy.ID,
		Milestone: MilestoneSevenDays,
		Status:    db.DeliveryStatusSent,
	}

	outcome := d.Dispatch(context.Background(), sevenDays, []db.PolicySnapshot{policy})

	if outcome.Skipped != 1 || outcome.Failed != 0 || outcome.Sent != 0 {
		t.Fatalf("conflict should count as skipped: %+v", outcome)
	}
}

func TestDispatch_LedgerCheckFailureCountsAsFailed(t *testing.T) {
	ledger := newFakeLedger()
	ledger.existsErr = errors.New("connection refused")
	snd := newFakeSender()
	d := NewDispatcher(ledger, snd, zap.NewNop())

	policy := policyWith("POL-100", "+911111111111")
	outcome := d.Dispatch(context.Background(), sevenDays, []db.PolicySnapshot{policy})

	if outcome.Failed != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(snd.sent) != 0 {
		t.Error("should not send when the ledger is unreachable")
	}
}

func TestDispatch_EmptyBatch(t *testing.T) {
	d := NewDispatcher(newFakeLedger(), newFakeSender(), zap.NewNop())

	outcome := d.Dispatch(context.Background(), sevenDays, nil)

	if outcome != (DispatchOutcome{}) {
		t.Fatalf("expected zero outcome, got %+v", outcome)
	}
}
