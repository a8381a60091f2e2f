package ticket_api

import (
	"context"
	"errors"
	"fmt"

	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/metrics"
	tickets "ms-registration/internal/tickets/service"
)

// KafkaCheckin applies scans that arrive on the check-in topic. Rejected
// scans are final. Any other failure wraps kafka.ErrRetry so the consumer
// holds the offset and tries again.
func KafkaCheckin(svc *tickets.TicketService, m *metrics.Metrics, log *logger.Logger) kafka.CheckinHandler {
	return func(ctx context.Context, msg kafka.CheckinMessage) error {
		reg, err := svc.CheckIn(ctx, msg.TicketPayload)
		switch {
		case err == nil:
			m.CheckIn("ok", "kafka")
			log.LogSecurity("CHECKIN", fmt.Sprintf("Scanner %s checked in %s", msg.ScannerID, reg.ID))
			return nil
		case errors.Is(err, tickets.ErrAlreadyCheckedIn):
			m.CheckIn("duplicate", "kafka")
		case errors.Is(err, tickets.ErrInvalidTicket):
			m.CheckIn("invalid", "kafka")
		case errors.Is(err, tickets.ErrTicketNotFound):
			m.CheckIn("not_found", "kafka")
		default:
			m.CheckIn("error", "kafka")
			return fmt.Errorf("%w: %v", kafka.ErrRetry, err)
		}
		return err
	}
}
