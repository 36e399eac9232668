package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/mongo"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/postgres"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/dal/rabbitmq"
	inventoryrepo "github.com/montoyitadevelp/acme-order-pipeline/internal/dal/repositories/inventory/postgres"
	orderrepo "github.com/montoyitadevelp/acme-order-pipeline/internal/dal/repositories/order/mongo"
	processedrepo "github.com/montoyitadevelp/acme-order-pipeline/internal/dal/repositories/processedevent/mongo"
	releaserepo "github.com/montoyitadevelp/acme-order-pipeline/internal/dal/repositories/releasequeue/postgres"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/otel"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/services/healthsvc"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/services/inventorysvc"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/services/ordersvc"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/services/paymentsvc"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/transport/consumer"
	httptransport "github.com/montoyitadevelp/acme-order-pipeline/internal/transport/http"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/transport/producer"
	releaseworker "github.com/montoyitadevelp/acme-order-pipeline/internal/worker/release"
)

// App represents the application.
type App struct {
	orderSvc       *ordersvc.OrderService
	transport      *httptransport.HTTPTransport
	eventProducer  *producer.Producer
	eventConsumer  *consumer.Consumer
	releaseWorker  *releaseworker.Worker
	consumerClient *rabbitmq.Client
	postgresClient *postgres.Client
	mongoClient    *mongo.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()
	postgresClient := postgres.MustNewClient()
	mongoClient := mongo.MustNewClient()

	eventProducer := producer.NewProducer()
	if err := eventProducer.Start(context.Background()); err != nil {
		// Bus unavailability at startup is a configuration error, not a
		// retryable runtime condition.
		panic(err)
	}

	orderRepository := orderrepo.NewOrderRepository(mongoClient)
	processedRepository := processedrepo.NewProcessedEventRepository(mongoClient)
	releaseRepository := releaserepo.NewReleaseQueueRepository(postgresClient)

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(postgresClient),
		ordersvc.WithOrderRepository(orderRepository),
		ordersvc.WithReleaseQueue(releaseRepository),
		ordersvc.WithProducer(eventProducer),
		ordersvc.WithGateway(paymentsvc.NewSimulatedGateway()),
	)

	inventorySvc := inventorysvc.MustNewInventoryService(
		inventorysvc.WithInventoryRepository(
			inventoryrepo.NewInventoryRepository(postgresClient.Pool()),
		),
	)

	healthSvc := healthsvc.NewHealthService(postgresClient, mongoClient, eventProducer)

	transport := httptransport.NewHTTPTransport(orderSvc, inventorySvc, healthSvc)
	transport.RegisterRoutes()

	releaseWorker := releaseworker.NewWorker(releaseRepository, orderSvc)

	a := &App{
		orderSvc:       orderSvc,
		transport:      transport,
		eventProducer:  eventProducer,
		releaseWorker:  releaseWorker,
		postgresClient: postgresClient,
		mongoClient:    mongoClient,
		otelController: otelController,
	}

	if viper.GetBool("consumer.enabled") {
		consumerClient, err := rabbitmq.NewClient()
		if err != nil {
			panic(err)
		}

		a.consumerClient = consumerClient
		a.eventConsumer = consumer.NewConsumer(consumerClient, orderSvc, processedRepository)
	}

	return a
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		slog.Info("Starting release worker")
		a.releaseWorker.Start(ctx)
	}()

	if a.eventConsumer != nil {
		go func() {
			slog.Info("Starting event consumer")
			if err := a.eventConsumer.Run(ctx); err != nil {
				slog.Error("Consumer error", "error", err)
			}
		}()
	}

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	a.gracefulShutdown()
}

// gracefulShutdown stops components in dependency order: the inbound surfaces
// first, then the saga's background phases, then the producer (draining its
// in-flight publishes), then the stores.
func (a *App) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if a.eventConsumer != nil {
		if err := a.eventConsumer.Shutdown(); err != nil {
			slog.Error("Consumer shutdown error", "error", err)
		} else {
			slog.Info("Consumer stopped gracefully")
		}
	}

	a.releaseWorker.Stop()
	slog.Info("Release worker stopped gracefully")

	a.orderSvc.Stop()
	slog.Info("Background order phases drained")

	if err := a.eventProducer.Stop(); err != nil {
		slog.Error("Producer shutdown error", "error", err)
	} else {
		slog.Info("Producer stopped gracefully")
	}

	if a.consumerClient != nil {
		if err := a.consumerClient.Close(); err != nil {
			slog.Error("RabbitMQ connection close error", "error", err)
		} else {
			slog.Info("RabbitMQ connection closed gracefully")
		}
	}

	if err := a.mongoClient.Close(ctx); err != nil {
		slog.Error("MongoDB connection close error", "error", err)
	} else {
		slog.Info("MongoDB connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Otel trace provider connection close error", "error", err)
	} else {
		slog.Info("Otel trace provider connection closed gracefully")
	}

	slog.Info("Application shutdown complete")
}
