package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/util"

	appconfig "github.com/agenthive/governor/apps/governor/config"
	"github.com/agenthive/governor/apps/governor/service/gate"
	"github.com/agenthive/governor/apps/governor/service/repository"
	"github.com/agenthive/governor/internal/events"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.GovernorConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "capability_governor"
	}

	policy := cfg.GatePolicy()
	if err = policy.Validate(); err != nil {
		util.Log(ctx).With("err", err).Error("invalid gate policy configuration")
		return
	}

	// Create service with Frame
	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
		frame.WithDatastore(),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	// Get managers
	dbManager := svc.DatastoreManager()
	evtsMan := svc.EventsManager()

	dbPool := dbManager.GetPool(ctx, datastore.DefaultPoolName)

	// ==========================================================================
	// Setup Repositories & Coordination Backends
	// ==========================================================================

	approvalRepo := repository.NewApprovalRepository(ctx, dbPool)
	violationRepo := repository.NewViolationRepository(ctx, dbPool)
	velocityRepo := repository.NewVelocityRepository(ctx, dbPool)

	backends, err := events.NewBackends(ctx, cfg.RedisURI)
	if err != nil {
		log.WithError(err).Fatal("could not initialise coordination backends")
	}
	defer backends.Close()

	// ==========================================================================
	// Setup Services
	// ==========================================================================

	approvalService := gate.NewApprovalService(
		approvalRepo,
		backends.Locking,
		cfg.ApprovalLockTTL,
		evtsMan,
		cfg.QueueGateCheckedName,
	)

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	gateCheckedPublisher := frame.WithRegisterPublisher(
		cfg.QueueGateCheckedName,
		cfg.QueueGateCheckedURI,
	)

	gateViolationsPublisher := frame.WithRegisterPublisher(
		cfg.QueueGateViolationsName,
		cfg.QueueGateViolationsURI,
	)

	// ==========================================================================
	// Register Subscribers
	// ==========================================================================

	measurementSubscriber := frame.WithRegisterSubscriber(
		cfg.QueueVelocityMeasurementsName,
		cfg.QueueVelocityMeasurementsURI,
		gate.NewVelocityMeasurementHandler(
			policy,
			approvalRepo,
			violationRepo,
			velocityRepo,
			backends.Deduplication,
			cfg.MeasurementDedupTTL,
			evtsMan,
			cfg.QueueGateCheckedName,
			cfg.QueueGateViolationsName,
		),
	)

	proposalSubscriber := frame.WithRegisterSubscriber(
		cfg.QueueImprovementProposalsName,
		cfg.QueueImprovementProposalsURI,
		gate.NewImprovementProposalHandler(policy, evtsMan, cfg.QueueGateCheckedName),
	)

	reviewSubscriber := frame.WithRegisterSubscriber(
		cfg.QueueApprovalReviewsName,
		cfg.QueueApprovalReviewsURI,
		gate.NewApprovalReviewHandler(approvalService),
	)

	// ==========================================================================
	// Setup HTTP Endpoints
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"governor"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"governor"}`))
	})

	// Budget query: how much headroom is left under the gate for this agent.
	mux.HandleFunc("/api/v1/agents/", newBudgetHandler(policy, velocityRepo))

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(mux),
		// Publishers
		gateCheckedPublisher,
		gateViolationsPublisher,
		// Subscribers
		measurementSubscriber,
		proposalSubscriber,
		reviewSubscriber,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting capability governor service...",
		"max_growth_per_day", policy.MaxGrowthPerDay,
		"enforce_gates", policy.EnforceGates,
	)
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}

// newBudgetHandler serves GET /api/v1/agents/{id}/budget.
func newBudgetHandler(policy gate.GatePolicy, velocities repository.VelocityRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Path shape: /api/v1/agents/{id}/budget
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[1] != "budget" {
			http.NotFound(w, r)
			return
		}

		agentID, err := events.ParseAgentID(parts[0])
		if err != nil {
			http.Error(w, "invalid agent ID", http.StatusBadRequest)
			return
		}

		record, err := velocities.GetByAgent(r.Context(), agentID.String())
		if err != nil {
			if errors.Is(err, repository.ErrVelocityNotFound) {
				http.Error(w, "no velocity measurement for agent", http.StatusNotFound)
				return
			}
			util.Log(r.Context()).WithError(err).Error("budget lookup failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		measurement, err := record.ToMeasurement()
		if err != nil {
			util.Log(r.Context()).WithError(err).Error("corrupt velocity snapshot")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		limits, err := gate.CalculateSafeImprovementLimit(*measurement, policy)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(limits)
	}
}
