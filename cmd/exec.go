package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"event-portal/config"
	"event-portal/internal/handlers"
	"event-portal/internal/services"
	"event-portal/internal/services/gateway"
	"event-portal/internal/services/portal"
	"event-portal/internal/status"
	"event-portal/models"
	"event-portal/monitoring"
	"event-portal/security"
	"event-portal/utils"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

// Execute runs the portal command line.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "portal",
		Short:         "Event registration and payment portal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(credentialCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the portal HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Start()
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [order-id]",
		Short: "Poll one order until its payment outcome is known",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			logger, err := utils.NewLogger(cfg.Environment)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client := portal.NewClient(portal.Config{BaseURL: cfg.PortalAPIURL, Timeout: cfg.PortalAPITimeout}, logger)
			reconciler := services.NewReconciler(client, services.ReconcilerConfig{
				Interval: cfg.ReconcileInterval,
				Timeout:  cfg.ReconcileTimeout,
			}, nil, nil, nil, logger)

			outcome, err := reconciler.Reconcile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], outcome)
			return nil
		},
	}
}

func credentialCmd() *cobra.Command {
	var token, out string
	var size int

	cmd := &cobra.Command{
		Use:   "credential [event-id]",
		Short: "Write the attendance QR code for a confirmed registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			logger, err := utils.NewLogger(cfg.Environment)
			if err != nil {
				return err
			}
			defer logger.Sync()

			sess := models.SessionFromHeader(token)
			if !sess.Authenticated() {
				return errors.New("credential: --token is required")
			}

			client := portal.NewClient(portal.Config{BaseURL: cfg.PortalAPIURL, Timeout: cfg.PortalAPITimeout}, logger)
			st, err := client.RegistrationStatus(cmd.Context(), sess, models.ID(args[0]))
			if err != nil {
				return fmt.Errorf("credential: %s", describe(err))
			}

			cred, err := services.NewCredentialIssuer(size, nil, logger).Issue(st)
			if err != nil {
				return fmt.Errorf("credential: %s", describe(err))
			}
			if cred.Placeholder {
				return fmt.Errorf("credential: %s", cred.Message)
			}
			if err := os.WriteFile(out, cred.PNG, 0o644); err != nil {
				return fmt.Errorf("credential: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, cred.Fingerprint)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token of the registered user")
	cmd.Flags().StringVarP(&out, "out", "o", "credential.png", "Output PNG file")
	cmd.Flags().IntVar(&size, "size", 256, "Image size in pixels")
	return cmd
}

// Start wires the portal and serves HTTP until SIGINT or SIGTERM.
func Start() error {
	cfg := config.LoadConfig()

	logger, err := utils.NewLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs the status cache and the rate limiter; without it both
	// degrade to pass-through.
	var rc redis.Cmdable
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Warn("redis unavailable, running without status cache", zap.Error(err))
	} else {
		defer redisClient.Close()
		rc = redisClient
	}

	var notifier *services.Notifier
	if cfg.PubNubEnabled() {
		pub := services.NewPubNubPublisher(services.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       cfg.PubNubUserID,
		})
		defer pub.Close()
		notifier = services.NewNotifier(pub, logger)
	}

	monitor := monitoring.NewMonitor()
	client := portal.NewClient(portal.Config{BaseURL: cfg.PortalAPIURL, Timeout: cfg.PortalAPITimeout}, logger)

	sdk := gateway.NewSDKLoader(cfg.CheckoutSDKURL, nil)
	gateways := gateway.NewRegistry(gateway.NewFactory(), logger)
	if err := gateways.Register(models.GatewayCashfree, &gateway.EmbeddedConfig{SDK: sdk}); err != nil {
		return err
	}
	if err := gateways.Register(models.GatewayPayU, &gateway.RedirectConfig{AllowedHosts: cfg.RedirectAllowedHosts}); err != nil {
		return err
	}
	defer gateways.Close(context.Background())

	cache := services.NewStatusCache(rc, cfg.StatusCacheTTL, monitor, logger)
	registration := services.NewRegistrationService(client, cache, monitor, logger)
	orchestrator := services.NewOrchestrator(client, registration, cache, gateways, cfg.ReturnURL(), monitor, logger)
	reconciler := services.NewReconciler(client, services.ReconcilerConfig{
		Interval: cfg.ReconcileInterval,
		Timeout:  cfg.ReconcileTimeout,
	}, cache, notifier, monitor, logger)
	issuer := services.NewCredentialIssuer(0, monitor, logger)

	limiter := security.NewRateLimiter(rc, cfg.RateLimitPerMinute, logger)

	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(handlers.RequestLogger(logger))

	routes := &handlers.Routes{
		Flow:       handlers.NewFlowHandler(orchestrator, logger),
		Payment:    handlers.NewPaymentHandler(reconciler, logger),
		Credential: handlers.NewCredentialHandler(issuer, cache, client, logger),
		Checkout:   handlers.NewCheckoutHandler(sdk, logger),
		Redis:      rc,
		Protect:    []echo.MiddlewareFunc{limiter.AntiBotMiddleware(), limiter.RegistrationRateLimit()},
		Metrics:    cfg.EnableMetrics,
	}
	routes.Register(e)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     e,
		ReadTimeout: 15 * time.Second,
		// payment return long-polls for up to the reconcile timeout
		WriteTimeout: cfg.ReconcileTimeout + 15*time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.Strings("gateways", providerNames(gateways.Providers())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	// warm the checkout SDK so the first payment does not pay for it
	go func() {
		if err := sdk.Ensure(ctx); err != nil {
			logger.Warn("checkout sdk preload failed", zap.Error(err))
		}
	}()

	handleShutdown(cancel)

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	cancel()
}

func providerNames(providers []models.Gateway) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}
	return names
}

func describe(err error) string {
	return fmt.Sprintf("%s (%v)", status.UserMessage(err), err)
}
