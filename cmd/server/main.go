// Command server wires the CRUD core (schema, store, broker, cache, filter
// pipeline, authentication, and notification ingestion) into a running
// process, the way backend/cmd/server/main.go wires webstatus.dev's HTTP
// server together: read configuration from the environment, construct each
// collaborator, fail fast on setup errors, then block until signaled.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/SocketCluster/sc-crud-rethink/authn"
	"github.com/SocketCluster/sc-crud-rethink/broker"
	"github.com/SocketCluster/sc-crud-rethink/broker/local"
	"github.com/SocketCluster/sc-crud-rethink/broker/pubsubbroker"
	"github.com/SocketCluster/sc-crud-rethink/concurrency"
	"github.com/SocketCluster/sc-crud-rethink/crud"
	"github.com/SocketCluster/sc-crud-rethink/filterpipeline"
	"github.com/SocketCluster/sc-crud-rethink/notifyapi"
	"github.com/SocketCluster/sc-crud-rethink/resourcecache"
	"github.com/SocketCluster/sc-crud-rethink/schema"
	"github.com/SocketCluster/sc-crud-rethink/store/memory"
)

func parseEnvVarDuration(key, fallback string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		raw = fallback
	}

	duration, err := time.ParseDuration(raw)
	if err != nil {
		slog.ErrorContext(context.TODO(), "unable to parse duration", "key", key, "input value", raw)
		os.Exit(1)
	}

	return duration
}

// registeredModels is the integration point a real deployment populates with
// its own schema.Model declarations (fields, views, accessControl and
// pre/post filter hooks). It's empty here because this command is the
// reference wiring, not a concrete application.
func registeredModels(authenticator *authn.Authenticator) map[string]schema.Model {
	_ = authenticator

	return map[string]schema.Model{}
}

// buildBroker returns a pubsubbroker.Broker when PUBSUB_TOPIC_ID is set,
// which relays every local publish to that Cloud Pub/Sub topic, and a bare
// local.Broker otherwise (a single-instance deployment). This command starts
// no Listen loop, so messages published by peer instances are not delivered
// to this process's watchers.
func buildBroker(ctx context.Context, projectID string) broker.Broker {
	topicID := os.Getenv("PUBSUB_TOPIC_ID")
	if topicID == "" {
		return local.New()
	}

	client, err := pubsubbroker.NewGCPClient(ctx, projectID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create pub/sub client", "error", err)
		os.Exit(1)
	}

	subID := os.Getenv("PUBSUB_SUBSCRIPTION_ID")

	return pubsubbroker.New(client,
		func(string) string { return topicID },
		func(string) string { return subID },
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	projectID := os.Getenv("PROJECT_ID")

	firebaseApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}) //nolint:exhaustruct // zero-value Config beyond ProjectID is correct.
	if err != nil {
		slog.ErrorContext(ctx, "error initializing firebase app", "error", err)
		os.Exit(1)
	}
	firebaseAuthClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error getting firebase auth client", "error", err)
		os.Exit(1)
	}
	authenticator := authn.New(firebaseAuthClient)

	registry := schema.New(registeredModels(authenticator))
	adapter := memory.New()
	cache := resourcecache.New(parseEnvVarDuration("CACHE_TTL", "30s"), false)
	pipeline := filterpipeline.New(registry, adapter, cache,
		filterpipeline.WithBlockPreByDefault(true),
		filterpipeline.WithBlockPostByDefault(false),
	)

	brk := buildBroker(ctx, projectID)
	brk.AddMiddleware(broker.Emit, pipeline.EmitMiddleware())
	brk.AddMiddleware(broker.PublishIn, pipeline.PublishInMiddleware())
	brk.AddMiddleware(broker.Subscribe, pipeline.SubscribeMiddleware())

	orchestrator := crud.New(registry, adapter, brk, cache, pipeline,
		crud.WithDefaultPageSize(50),
		crud.WithBlockInboundByDefault(true),
	)
	orchestrator.OnWarning(func(err error) {
		slog.ErrorContext(ctx, "crud: non-fatal warning", "error", err)
	})

	tasks := []func(context.Context) error{
		func(ctx context.Context) error {
			<-ctx.Done()

			return nil
		},
	}

	if mutationSub := os.Getenv("MUTATION_SUBSCRIPTION_ID"); mutationSub != "" {
		notifySubscriber, err := pubsubbroker.NewGCPClient(ctx, projectID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create pub/sub client for mutation notifications", "error", err)
			os.Exit(1)
		}
		notifier := notifyapi.New(orchestrator, notifySubscriber, mutationSub)
		tasks = append(tasks, notifier.Listen)
	}

	if err := concurrency.RunGroup(ctx, tasks...); err != nil {
		slog.ErrorContext(ctx, "server exited with error", "error", err)
		os.Exit(1)
	}
}
