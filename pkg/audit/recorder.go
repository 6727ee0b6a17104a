package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/aqarly/aqarly/pkg/async"
	"github.com/aqarly/aqarly/pkg/events"
	"github.com/aqarly/aqarly/pkg/observability"
)

// writeTimeout bounds one audit write
const writeTimeout = 5 * time.Second

// Recorder turns domain events into audit entries. Writes happen off
// the dispatcher goroutine; a failed write is logged and dropped, the
// trail is best-effort.
type Recorder struct {
	store  *Store
	logger *observability.Logger
}

// NewRecorder creates a recorder over the given store
func NewRecorder(store *Store, logger *observability.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Handler returns the event handler to subscribe on the dispatcher
func (r *Recorder) Handler() events.Handler {
	return func(_ context.Context, event events.Event) {
		entry := entryFor(event)
		if entry == nil {
			return
		}
		async.Go(context.Background(), writeTimeout, "audit write", r.logger, func(ctx context.Context) error {
			return r.store.Insert(ctx, entry)
		})
	}
}

func entryFor(event events.Event) *Entry {
	switch e := event.(type) {
	case events.ContractStatusChanged:
		return &Entry{
			EventType:   string(e.Type()),
			OwnershipID: e.OwnershipID,
			EntityType:  "contract",
			EntityID:    e.ContractID,
			FromStatus:  e.From,
			ToStatus:    e.To,
			ActorID:     actor(e.ActorID),
		}
	case events.ContractApproved:
		return &Entry{
			EventType:   string(e.Type()),
			OwnershipID: e.OwnershipID,
			EntityType:  "contract",
			EntityID:    e.ContractID,
			ActorID:     actor(e.ApprovedBy),
		}
	case events.InvoiceStatusChanged:
		return &Entry{
			EventType:   string(e.Type()),
			OwnershipID: e.OwnershipID,
			EntityType:  "invoice",
			EntityID:    e.InvoiceID,
			FromStatus:  e.From,
			ToStatus:    e.To,
		}
	case events.InvoiceSent:
		return &Entry{
			EventType:   string(e.Type()),
			OwnershipID: e.OwnershipID,
			EntityType:  "invoice",
			EntityID:    e.InvoiceID,
		}
	case events.InvoicePaid:
		return &Entry{
			EventType:   string(e.Type()),
			OwnershipID: e.OwnershipID,
			EntityType:  "invoice",
			EntityID:    e.InvoiceID,
			OccurredAt:  e.PaidAt,
		}
	case events.PaymentConfirmed:
		return &Entry{
			EventType:   string(e.Type()),
			OwnershipID: e.OwnershipID,
			EntityType:  "payment",
			EntityID:    e.PaymentID,
			ActorID:     actor(e.ConfirmedBy),
			Detail:      fmt.Sprintf("amount=%.2f invoice=%d", e.Amount, e.InvoiceID),
		}
	case events.PaymentReverted:
		return &Entry{
			EventType:   string(e.Type()),
			OwnershipID: e.OwnershipID,
			EntityType:  "payment",
			EntityID:    e.PaymentID,
			Detail:      fmt.Sprintf("invoice=%d", e.InvoiceID),
		}
	case events.TenantInvited:
		return &Entry{
			EventType:   string(e.Type()),
			OwnershipID: e.OwnershipID,
			EntityType:  "tenant_invitation",
			EntityID:    e.InvitationID,
		}
	case events.TenantInvitationAccepted:
		return &Entry{
			EventType:   string(e.Type()),
			OwnershipID: e.OwnershipID,
			EntityType:  "tenant_invitation",
			EntityID:    e.InvitationID,
			ActorID:     e.AcceptedBy,
		}
	default:
		return nil
	}
}

// actor maps the zero actor (background jobs) to a null actor id
func actor(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
