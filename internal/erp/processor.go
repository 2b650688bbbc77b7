package erp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/pkg/models"
	"github.com/jtich40/event-driven-integration-demo/pkg/store"
)

var (
	// ErrProcessing wraps failures that should make the transport redeliver.
	ErrProcessing = errors.New("processing failed")

	// ErrDuplicateEvent is returned in write-once mode when the event has
	// already been recorded.
	ErrDuplicateEvent = errors.New("event already processed")
)

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// Latency is the simulated round trip to the ERP system.
	Latency time.Duration
	// WriteOnce makes the audit write conditional on the event id being new.
	WriteOnce bool
}

// Processor pushes a user to the ERP system and records the audit row.
type Processor struct {
	audit  store.Table[models.ProcessedEventRecord]
	cfg    ProcessorConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewProcessor creates a Processor writing audit rows to audit.
func NewProcessor(audit store.Table[models.ProcessedEventRecord], cfg ProcessorConfig, logger *zap.Logger) *Processor {
	return &Processor{audit: audit, cfg: cfg, logger: logger, now: time.Now}
}

// ExternalID is the employee id the ERP system assigns to a user.
func ExternalID(userID string) string {
	if len(userID) > 8 {
		userID = userID[:8]
	}
	return "EMP-" + userID
}

// Process simulates the ERP call for event and stores a Processed audit row.
func (p *Processor) Process(ctx context.Context, event models.UserCreatedEvent) error {
	logger := p.logger.With(zap.String("event_id", event.EventID), zap.String("user_id", event.User.ID))

	externalID, err := p.callERP(ctx, event)
	if err != nil {
		return fmt.Errorf("%w: event %s: %w", ErrProcessing, event.EventID, err)
	}

	record := models.ProcessedEventRecord{
		EventID:     event.EventID,
		UserID:      event.User.ID,
		UserName:    event.User.Name,
		UserEmail:   event.User.Email,
		ExternalID:  externalID,
		ProcessedAt: p.now().UTC(),
		EventType:   event.EventType,
		Status:      models.StatusProcessed,
	}

	if p.cfg.WriteOnce {
		err = p.audit.PutIfAbsent(ctx, record)
		if errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, event.EventID)
		}
	} else {
		err = p.audit.Put(ctx, record)
	}
	if err != nil {
		logger.Error("Failed to store processed event", zap.Error(err))
		return fmt.Errorf("%w: event %s: %w", ErrProcessing, event.EventID, err)
	}

	logger.Info("Event processed", zap.String("external_id", externalID))
	return nil
}

// callERP stands in for the outbound ERP request. Only cancellation can
// make it fail.
func (p *Processor) callERP(ctx context.Context, event models.UserCreatedEvent) (string, error) {
	if p.cfg.Latency > 0 {
		timer := time.NewTimer(p.cfg.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	externalID := ExternalID(event.User.ID)
	p.logger.Debug("ERP employee record created",
		zap.String("user_name", event.User.Name),
		zap.String("external_id", externalID))
	return externalID, nil
}
