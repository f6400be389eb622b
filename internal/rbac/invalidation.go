package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// CatalogInvalidator drops the catalog snapshot whenever a message arrives on
// the invalidation channel, so every API process observes catalog edits
// without a restart.
type CatalogInvalidator struct {
	client   *redis.Client
	channel  string
	catalog  *Catalog
	logger   *slog.Logger
	recorder InvalidationRecorder
}

// InvalidationRecorder counts catalog invalidations.
type InvalidationRecorder interface {
	ObserveInvalidation(origin string)
}

// NewCatalogInvalidator constructs a subscriber for channel.
func NewCatalogInvalidator(client *redis.Client, channel string, catalog *Catalog, logger *slog.Logger) *CatalogInvalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogInvalidator{client: client, channel: channel, catalog: catalog, logger: logger}
}

// WithRecorder sets the recorder notified on every invalidation.
func (i *CatalogInvalidator) WithRecorder(recorder InvalidationRecorder) *CatalogInvalidator {
	i.recorder = recorder
	return i
}

// Start subscribes and returns once the subscription is confirmed. Messages
// are handled in a background goroutine until ctx is cancelled.
func (i *CatalogInvalidator) Start(ctx context.Context) error {
	sub := i.client.Subscribe(ctx, i.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("rbac: subscribe %s: %w", i.channel, err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				i.catalog.Invalidate()
				if i.recorder != nil {
					i.recorder.ObserveInvalidation("pubsub")
				}
				i.logger.Info("rbac catalog invalidated", slog.String("reason", msg.Payload))
			}
		}
	}()
	return nil
}

// PublishCatalogInvalidation asks every subscribed process to drop its
// catalog snapshot.
func PublishCatalogInvalidation(ctx context.Context, client *redis.Client, channel, reason string) error {
	if err := client.Publish(ctx, channel, reason).Err(); err != nil {
		return fmt.Errorf("rbac: publish catalog invalidation: %w", err)
	}
	return nil
}
