package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/frame/queue"
	"github.com/pitabwire/util"

	appconfig "github.com/agenthive/governor/apps/gateway/config"
	"github.com/agenthive/governor/apps/gateway/middleware"
	"github.com/agenthive/governor/apps/gateway/service/handlers"
	"github.com/agenthive/governor/apps/governor/service/repository"
)

// queuePublisher adapts the frame queue manager to the handlers'
// QueuePublisher interface: marshal the payload and hand it to the
// registered publisher for the named queue.
type queuePublisher struct {
	queue queue.Manager
}

func (p *queuePublisher) Publish(ctx context.Context, queueName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for queue %s: %w", queueName, err)
	}

	publisher, err := p.queue.GetPublisher(queueName)
	if err != nil {
		return fmt.Errorf("get publisher for queue %s: %w", queueName, err)
	}
	return publisher.Publish(ctx, data)
}

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.GatewayConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "governor_gateway"
	}

	// Create service with Frame. The gateway shares the governor's
	// datastore for read-side queries (approval listings, latest velocity);
	// all writes go through the queues.
	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
		frame.WithRegisterServerOauth2Client(),
		frame.WithDatastore(),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	publisher := &queuePublisher{queue: svc.QueueManager()}
	dbPool := svc.DatastoreManager().GetPool(ctx, datastore.DefaultPoolName)

	approvalRepo := repository.NewApprovalRepository(ctx, dbPool)
	velocityRepo := repository.NewVelocityRepository(ctx, dbPool)

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	measurementPublisher := frame.WithRegisterPublisher(
		cfg.QueueVelocityMeasurementsName,
		cfg.QueueVelocityMeasurementsURI,
	)

	proposalPublisher := frame.WithRegisterPublisher(
		cfg.QueueImprovementProposalsName,
		cfg.QueueImprovementProposalsURI,
	)

	reviewPublisher := frame.WithRegisterPublisher(
		cfg.QueueApprovalReviewsName,
		cfg.QueueApprovalReviewsURI,
	)

	// ==========================================================================
	// Setup Middleware
	// ==========================================================================

	securityMan := svc.SecurityManager()
	authenticator := securityMan.GetAuthenticator(ctx)
	authMiddleware := middleware.NewAuthMiddleware(authenticator)

	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimitRequestsPerMinute,
		cfg.RateLimitBurstSize,
	)
	defer rateLimiter.Stop()

	// ==========================================================================
	// Setup HTTP Server
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"gateway"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"gateway"}`))
	})

	// Machine endpoints: telemetry collectors and mutation engines identify
	// themselves in the payload; authentication refines identity when present.
	mux.Handle("POST /api/v1/gate-checks", authMiddleware.OptionalMiddleware(
		handlers.NewGateCheckHandler(&cfg, publisher),
	))
	mux.Handle("POST /api/v1/improvement-proposals", authMiddleware.OptionalMiddleware(
		handlers.NewProposalHandler(&cfg, publisher, velocityRepo),
	))

	// Operator endpoints require an authenticated reviewer.
	mux.Handle("POST /api/v1/approvals/{id}/review", authMiddleware.Middleware(
		handlers.NewApprovalReviewHandler(&cfg, publisher, approvalRepo),
	))
	mux.Handle("GET /api/v1/approvals", authMiddleware.Middleware(
		handlers.NewApprovalListHandler(&cfg, approvalRepo),
	))

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(rateLimiter.Middleware(mux)),
		measurementPublisher,
		proposalPublisher,
		reviewPublisher,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting governor gateway service...")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}
