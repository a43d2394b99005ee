// Package repository persists approval requests and violation audit rows.
// PostgreSQL via the frame datastore pool when configured, in-memory
// otherwise.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"

	"github.com/agenthive/governor/internal/events"
)

// ErrDatabaseUnavailable is returned when the database connection is not available.
var ErrDatabaseUnavailable = errors.New("database connection is not available")

// ErrRequestNotFound is returned when no approval request matches the ID.
var ErrRequestNotFound = errors.New("approval request not found")

// ErrAlreadyResolved is returned when a terminal request is resolved again.
// The optimistic status check lost: another reviewer got there first.
var ErrAlreadyResolved = errors.New("approval request already resolved")

// ApprovalRecord is the persisted form of an approval request. Velocity and
// trend evidence is stored as a JSON blob; the columns the review queue
// filters and sorts on are first-class.
type ApprovalRecord struct {
	ID          string `json:"id"           gorm:"primaryKey"`
	AgentID     string `json:"agent_id"     gorm:"index"`
	RequestType string `json:"request_type"`
	Status      string `json:"status"       gorm:"index"`

	CurrentGrowthRate float64 `json:"current_growth_rate"`
	Justification     string  `json:"justification"`

	Evidence []byte `json:"evidence" gorm:"type:jsonb"`

	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for the ApprovalRecord model.
func (ApprovalRecord) TableName() string {
	return "approval_requests"
}

type approvalEvidence struct {
	Velocity events.VelocityMeasurement `json:"velocity"`
	Trend    events.VelocityTrend       `json:"trend"`
}

// NewApprovalRecord converts a domain approval request to its persisted form.
func NewApprovalRecord(req *events.ApprovalRequest) (*ApprovalRecord, error) {
	evidence, err := json.Marshal(approvalEvidence{Velocity: req.Velocity, Trend: req.Trend})
	if err != nil {
		return nil, fmt.Errorf("marshal approval evidence: %w", err)
	}

	return &ApprovalRecord{
		ID:                req.ID.String(),
		AgentID:           req.AgentID.String(),
		RequestType:       string(req.RequestType),
		Status:            string(req.Status),
		CurrentGrowthRate: req.CurrentGrowthRate,
		Justification:     req.Justification,
		Evidence:          evidence,
		ReviewedBy:        req.ReviewedBy,
		ReviewNotes:       req.ReviewNotes,
		ReviewedAt:        req.ReviewedAt,
		CreatedAt:         req.CreatedAt,
	}, nil
}

// ToApprovalRequest converts the persisted record back to the domain form.
func (r *ApprovalRecord) ToApprovalRequest() (*events.ApprovalRequest, error) {
	id, err := events.ParseRequestID(r.ID)
	if err != nil {
		return nil, err
	}
	agentID, err := events.ParseAgentID(r.AgentID)
	if err != nil {
		return nil, err
	}

	var evidence approvalEvidence
	if len(r.Evidence) > 0 {
		if unmarshalErr := json.Unmarshal(r.Evidence, &evidence); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal approval evidence: %w", unmarshalErr)
		}
	}

	return &events.ApprovalRequest{
		ID:                id,
		AgentID:           agentID,
		RequestType:       events.RequestType(r.RequestType),
		Status:            events.ApprovalStatus(r.Status),
		CurrentGrowthRate: r.CurrentGrowthRate,
		Justification:     r.Justification,
		Velocity:          evidence.Velocity,
		Trend:             evidence.Trend,
		ReviewedBy:        r.ReviewedBy,
		ReviewNotes:       r.ReviewNotes,
		ReviewedAt:        r.ReviewedAt,
		CreatedAt:         r.CreatedAt,
	}, nil
}

// ApprovalRepository defines the interface for approval request persistence.
type ApprovalRepository interface {
	Create(ctx context.Context, record *ApprovalRecord) error
	GetByID(ctx context.Context, id string) (*ApprovalRecord, error)
	ListByStatus(ctx context.Context, status events.ApprovalStatus, limit int) ([]*ApprovalRecord, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*ApprovalRecord, error)

	// Resolve applies a terminal transition with an optimistic check on
	// status == pending. Returns ErrAlreadyResolved when the check fails.
	Resolve(ctx context.Context, id string, status events.ApprovalStatus, reviewer, notes string, reviewedAt time.Time) error
}

// NewApprovalRepository creates an approval repository. With a database
// pool it uses PostgreSQL; otherwise it falls back to in-memory storage.
func NewApprovalRepository(_ context.Context, p pool.Pool) ApprovalRepository {
	if p != nil {
		return &PGApprovalRepository{pool: p}
	}
	return &MemoryApprovalRepository{records: make(map[string]*ApprovalRecord)}
}

// PGApprovalRepository is the PostgreSQL implementation of ApprovalRepository.
type PGApprovalRepository struct {
	pool pool.Pool
}

func (r *PGApprovalRepository) db(ctx context.Context, readOnly bool) *gorm.DB {
	if r.pool == nil {
		return nil
	}
	return r.pool.DB(ctx, readOnly)
}

// Create inserts a new approval request record.
func (r *PGApprovalRepository) Create(ctx context.Context, record *ApprovalRecord) error {
	db := r.db(ctx, false)
	if db == nil {
		return ErrDatabaseUnavailable
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	return db.Create(record).Error
}

// GetByID retrieves an approval request by ID.
func (r *PGApprovalRepository) GetByID(ctx context.Context, id string) (*ApprovalRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var record ApprovalRecord
	if err := db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
		}
		return nil, err
	}
	return &record, nil
}

// ListByStatus lists approval requests in the given status, oldest first.
func (r *PGApprovalRepository) ListByStatus(
	ctx context.Context,
	status events.ApprovalStatus,
	limit int,
) ([]*ApprovalRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var records []*ApprovalRecord
	query := db.Where("status = ?", string(status)).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListByAgent lists an agent's approval requests, newest first.
func (r *PGApprovalRepository) ListByAgent(
	ctx context.Context,
	agentID string,
	limit int,
) ([]*ApprovalRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var records []*ApprovalRecord
	query := db.Where("agent_id = ?", agentID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Resolve applies a terminal transition guarded by status == pending.
func (r *PGApprovalRepository) Resolve(
	ctx context.Context,
	id string,
	status events.ApprovalStatus,
	reviewer, notes string,
	reviewedAt time.Time,
) error {
	db := r.db(ctx, false)
	if db == nil {
		return ErrDatabaseUnavailable
	}

	result := db.Model(&ApprovalRecord{}).
		Where("id = ? AND status = ?", id, string(events.ApprovalStatusPending)).
		Updates(map[string]interface{}{
			"status":       string(status),
			"reviewed_by":  reviewer,
			"review_notes": notes,
			"reviewed_at":  &reviewedAt,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// Either the row is missing or the status check lost the race.
		var record ApprovalRecord
		if err := db.First(&record, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
			}
			return err
		}
		return fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, id, record.Status)
	}

	return nil
}

// MemoryApprovalRepository is the in-memory implementation of ApprovalRepository.
type MemoryApprovalRepository struct {
	mu      sync.RWMutex
	records map[string]*ApprovalRecord
}

// NewMemoryApprovalRepository creates an in-memory approval repository.
func NewMemoryApprovalRepository() *MemoryApprovalRepository {
	return &MemoryApprovalRepository{records: make(map[string]*ApprovalRecord)}
}

// Create inserts a new approval request record.
func (r *MemoryApprovalRepository) Create(_ context.Context, record *ApprovalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return fmt.Errorf("approval request %s already exists", record.ID)
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	stored := *record
	r.records[record.ID] = &stored
	return nil
}

// GetByID retrieves an approval request by ID.
func (r *MemoryApprovalRepository) GetByID(_ context.Context, id string) (*ApprovalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}

	copied := *record
	return &copied, nil
}

// ListByStatus lists approval requests in the given status, oldest first.
func (r *MemoryApprovalRepository) ListByStatus(
	_ context.Context,
	status events.ApprovalStatus,
	limit int,
) ([]*ApprovalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*ApprovalRecord
	for _, record := range r.records {
		if record.Status == string(status) {
			copied := *record
			records = append(records, &copied)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ListByAgent lists an agent's approval requests, newest first.
func (r *MemoryApprovalRepository) ListByAgent(
	_ context.Context,
	agentID string,
	limit int,
) ([]*ApprovalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*ApprovalRecord
	for _, record := range r.records {
		if record.AgentID == agentID {
			copied := *record
			records = append(records, &copied)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Resolve applies a terminal transition guarded by status == pending.
func (r *MemoryApprovalRepository) Resolve(
	_ context.Context,
	id string,
	status events.ApprovalStatus,
	reviewer, notes string,
	reviewedAt time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}

	if record.Status != string(events.ApprovalStatusPending) {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, id, record.Status)
	}

	record.Status = string(status)
	record.ReviewedBy = reviewer
	record.ReviewNotes = notes
	record.ReviewedAt = &reviewedAt
	record.UpdatedAt = time.Now()
	return nil
}
