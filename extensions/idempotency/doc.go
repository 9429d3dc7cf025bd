// Package idempotency provides webhook delivery deduplication as an opt-in extension.
//
// # Overview
//
// The payment service retries a webhook delivery until the endpoint answers 2xx, and may
// deliver the same event more than once even after a success. Handlers with side effects
// (shipping an order, crediting an account) must therefore run at most once per event.
//
// # Storage
//
// The client library itself keeps no state between calls. Deduplication needs storage that
// outlives a request, and the right backend depends on the deployment:
//   - Single instance deployments: InMemoryStore
//   - Load-balanced clusters and serverless functions: RedisStore or a custom DeliveryStore
//
// # Usage
//
// Basic usage with the default in-memory store:
//
//	guard := idempotency.Wrap(handleEvent)
//	http.Handle("/webhooks", stdlib.WebhookHandler(client, guard.Handle))
//
// Custom TTL:
//
//	guard := idempotency.Wrap(handleEvent,
//	    idempotency.WithTTL(72 * time.Hour),
//	)
//
// Shared Redis store:
//
//	store := idempotency.NewRedisStore(redisClient, idempotency.WithRedisTTL(72*time.Hour))
//	guard := idempotency.Wrap(handleEvent,
//	    idempotency.WithStore(store),
//	)
//
// # How It Works
//
// 1. A key is derived from the verified event (event type, payment id, status and timestamp)
// 2. The store atomically checks for a completed delivery or one in flight
// 3. If completed: acknowledge without running the handler
// 4. If in flight: wait for the other delivery to finish, then acknowledge or take over
// 5. Otherwise: run the handler and record the key on success
//
// Failed handlers are NOT recorded, so the service's retry runs the handler again. A handler
// that panics releases its key before the panic continues.
//
// Each claim carries an owner token. RedisStore renews its lock while the handler runs, and a
// handler whose lock was lost cannot complete or release the delivery that replaced it.
package idempotency
