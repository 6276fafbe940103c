package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"storefront/internal/cart"
	"storefront/internal/category"
	"storefront/internal/config"
	"storefront/internal/counter"
	"storefront/internal/db"
	"storefront/internal/events"
	storeHttp "storefront/internal/handler/http"
	"storefront/internal/order"
	"storefront/internal/product"
	"storefront/internal/user"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Info().Msg("Starting storefront...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongo, err := db.New(ctx, cfg.Mongo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := ensureIndexes(ctx, mongo); err != nil {
		log.Fatal().Err(err).Msg("Failed to create indexes")
	}

	var publisher events.Publisher
	if cfg.AMQP.URL != "" {
		publisher, err = events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to event broker")
		}
	} else {
		log.Warn().Msg("No broker configured, order events will not be published")
		publisher = events.NopPublisher{}
	}

	productRepo := product.NewRepository(mongo.Database)
	productSvc := product.NewService(productRepo)

	cartRepo := cart.NewRepository(mongo.Database)
	cartSvc := cart.NewService(cartRepo, productSvc, mongo)

	categoryRepo := category.NewRepository(mongo.Database)
	categorySvc := category.NewService(categoryRepo, productRepo)

	userRepo := user.NewRepository(mongo.Database)
	userSvc := user.NewService(userRepo)

	numbers := counter.NewGenerator(counter.NewRepository(mongo.Database), counter.GeneratorConfig{
		Prefix:     cfg.Orders.NumberPrefix,
		Width:      cfg.Orders.SequenceWidth,
		DailyMax:   cfg.Orders.DailyMax,
		MaxRetries: cfg.Orders.MaxRetries,
	})

	orderRepo := order.NewRepository(mongo.Database)
	orderSvc := order.NewService(orderRepo, productSvc, cartRepo, numbers, mongo, publisher, order.Pricing{
		TaxRate:          cfg.Orders.TaxRate,
		ShippingFee:      cfg.Orders.ShippingFee,
		FreeShippingOver: cfg.Orders.FreeShippingOver,
	})

	router := storeHttp.NewRouter(
		storeHttp.NewProductHandler(productSvc),
		storeHttp.NewCartHandler(cartSvc),
		storeHttp.NewOrderHandler(orderSvc),
		storeHttp.NewCategoryHandler(categorySvc),
		storeHttp.NewUserHandler(userSvc),
	)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
	}

	publisher.Close()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	mongo.Close(closeCtx)

	log.Info().Msg("Storefront stopped gracefully.")
}

func ensureIndexes(ctx context.Context, mongo *db.Mongo) error {
	if err := product.EnsureIndexes(ctx, mongo.Database); err != nil {
		return err
	}
	if err := cart.EnsureIndexes(ctx, mongo.Database); err != nil {
		return err
	}
	if err := order.EnsureIndexes(ctx, mongo.Database); err != nil {
		return err
	}
	if err := category.EnsureIndexes(ctx, mongo.Database); err != nil {
		return err
	}
	return user.EnsureIndexes(ctx, mongo.Database)
}
