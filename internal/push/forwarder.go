package push

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/model"
	"github.com/Entreprise-SHOPNET/shopnet-relay/internal/store"
)

// Forwarder relays notifications to every stored web push subscription. It
// satisfies the bridge subscriber interface, so it receives each event once
// in fan-out order. Expired subscriptions are dropped on delivery.
type Forwarder struct {
	service *Service
	subs    *store.PushStore
	logger  *slog.Logger
}

func NewForwarder(service *Service, subs *store.PushStore, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		service: service,
		subs:    subs,
		logger:  logger,
	}
}

// Notify forwards a relayed notification to all local subscriptions.
// Delivery failures are logged and never propagate.
func (f *Forwarder) Notify(n model.Notification) {
	subs, err := f.subs.List()
	if err != nil {
		f.logger.Error("list push subscriptions", "error", err)
		return
	}

	payload := Payload{
		Title: n.Title,
		Body:  n.Body,
		URL:   n.Link,
		Tag:   n.Type,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, sub := range subs {
		if err := f.service.Send(ctx, &sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := f.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					f.logger.Error("delete expired subscription", "endpoint", sub.Endpoint, "error", err)
				} else {
					f.logger.Info("dropped expired push subscription", "endpoint", sub.Endpoint)
				}
			} else {
				f.logger.Error("forward notification", "endpoint", sub.Endpoint, "error", err)
			}
		}
	}
}
