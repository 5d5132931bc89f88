package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/broker"
	"checkout-service/internal/cart"
	"checkout-service/internal/loyalty"
	"checkout-service/internal/ordernumber"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"
	"checkout-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// notifier publishes order events and owns a broker connection.
type notifier interface {
	service.Notifier
	io.Closer
}

// newTransport builds the event publisher and the subscriber that feeds the
// notification worker for the configured broker.
func newTransport(cfg *config.Config) (notifier, worker.Subscriber, error) {
	switch cfg.Business.Notifier {
	case "rabbitmq":
		publisher, err := broker.NewRabbitPublisher(cfg.RabbitMQ)
		if err != nil {
			return nil, nil, err
		}
		consumer, err := broker.NewRabbitConsumer(cfg.RabbitMQ)
		if err != nil {
			publisher.Close()
			return nil, nil, err
		}
		return publisher, consumer, nil
	case "kafka", "":
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		return &kafkaNotifier{EventPublisher: broker.NewEventPublisher(producer), producer: producer}, consumer, nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier %q", cfg.Business.Notifier)
	}
}

type kafkaNotifier struct {
	*broker.EventPublisher
	producer *broker.Producer
}

func (n *kafkaNotifier) Close() error {
	return n.producer.Close()
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service", zap.String("notifier", cfg.Business.Notifier))

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis, cfg.Business.CartTTL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	publisher, subscriber, err := newTransport(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize notifier", zap.Error(err))
	}
	defer publisher.Close()

	orderService := service.NewOrderService(
		db,
		ordernumber.NewGenerator(cfg.Business.OrderPrefix, cfg.Business.Location()),
		loyalty.NewLedger(cfg.Business.DefaultPointsRate),
		redisClient,
		publisher,
		cfg.Business.IdempotencyTTL,
	)
	carts := cart.NewService(redisClient)

	notificationWorker := worker.NewNotificationWorker(subscriber, db, worker.NewLogDispatcher())

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, carts, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := notificationWorker.Start(gctx); err != nil {
			return fmt.Errorf("notification worker: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		return notificationWorker.Stop()
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}
