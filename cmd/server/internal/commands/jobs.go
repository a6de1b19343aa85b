package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/api"
	"github.com/mhaswell/fabtrace/internal/jobs"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

// registerJobs wires the background job handlers. Each runs inside the
// tenant scope its message names, over the same stores as the API.
func registerJobs(sub *jobs.Subscriber, stores api.Stores) {
	// capa.remind audits a reminder against every CAPA still open in the
	// tenant, so the trail shows when escalation started.
	sub.Register("capa.remind", func(ctx context.Context, scope *tenant.Scope, payload json.RawMessage) error {
		capas, err := stores.CAPAs.List(ctx, scope.TenantID())
		if err != nil {
			return err
		}

		now := time.Now()
		reminded := 0
		for _, capa := range capas {
			if capa.Status == models.CAPAStatusClosed {
				continue
			}
			event := &models.AuditEvent{
				EventID:   uuid.Must(uuid.NewV7()),
				TenantID:  scope.TenantID(),
				Action:    "capa.remind",
				Entity:    "capa",
				EntityID:  capa.CAPAID.String(),
				CreatedAt: now,
			}
			if err := stores.Audit.Append(ctx, event); err != nil {
				return err
			}
			reminded++
		}

		log.Ctx(ctx).Info().Int("count", reminded).Msg("Reminded open CAPAs")
		return nil
	})

	// order.reinspect is addressed by order id: the unscoped lookup maps
	// the order to its owning tenant, then the body runs in that scope.
	sub.RegisterBootstrap("order.reinspect",
		func(ctx context.Context, payload json.RawMessage) (*uuid.UUID, error) {
			var ref struct {
				OrderID uuid.UUID `json:"order_id"`
			}
			if err := json.Unmarshal(payload, &ref); err != nil {
				return nil, err
			}
			order, err := stores.Orders.Get(ctx, ref.OrderID)
			if err != nil {
				return nil, err
			}
			return order.TenantID, nil
		},
		func(ctx context.Context, scope *tenant.Scope, payload json.RawMessage) error {
			var ref struct {
				OrderID uuid.UUID `json:"order_id"`
			}
			if err := json.Unmarshal(payload, &ref); err != nil {
				return err
			}
			event := &models.AuditEvent{
				EventID:   uuid.Must(uuid.NewV7()),
				TenantID:  scope.TenantID(),
				Action:    "order.reinspect",
				Entity:    "order",
				EntityID:  ref.OrderID.String(),
				CreatedAt: time.Now(),
			}
			if err := stores.Audit.Append(ctx, event); err != nil {
				return err
			}

			log.Ctx(ctx).Info().Str("order_id", ref.OrderID.String()).Msg("Queued order for reinspection")
			return nil
		})
}
