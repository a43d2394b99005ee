package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"

	"github.com/agenthive/governor/internal/events"
)

// ViolationRecord is the persisted audit row for a gate breach. Violations
// are append-only: created once by the enforcement loop, never updated.
type ViolationRecord struct {
	ID            string `json:"id"             gorm:"primaryKey"`
	AgentID       string `json:"agent_id"       gorm:"index"`
	ViolationType string `json:"violation_type"`
	Severity      string `json:"severity"       gorm:"index"`

	CurrentGrowthRate    float64 `json:"current_growth_rate"`
	MaxAllowedGrowthRate float64 `json:"max_allowed_growth_rate"`
	ExcessGrowth         float64 `json:"excess_growth"`

	ActionTaken       string `json:"action_taken"`
	ApprovalRequestID string `json:"approval_request_id,omitempty" gorm:"index"`

	Evidence []byte `json:"evidence" gorm:"type:jsonb"`

	DetectedAt time.Time `json:"detected_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for the ViolationRecord model.
func (ViolationRecord) TableName() string {
	return "gate_violations"
}

// NewViolationRecord converts a domain violation to its persisted form.
// approvalRequestID is zero when no request was spawned.
func NewViolationRecord(v *events.Violation, approvalRequestID events.RequestID) (*ViolationRecord, error) {
	evidence, err := json.Marshal(approvalEvidence{Velocity: v.Velocity, Trend: v.Trend})
	if err != nil {
		return nil, fmt.Errorf("marshal violation evidence: %w", err)
	}

	record := &ViolationRecord{
		ID:                   events.NewEventID().String(),
		AgentID:              v.AgentID.String(),
		ViolationType:        string(v.ViolationType),
		Severity:             string(v.Severity),
		CurrentGrowthRate:    v.CurrentGrowthRate,
		MaxAllowedGrowthRate: v.MaxAllowedGrowthRate,
		ExcessGrowth:         v.ExcessGrowth,
		ActionTaken:          string(v.ActionTaken),
		Evidence:             evidence,
		DetectedAt:           v.DetectedAt,
	}
	if !approvalRequestID.IsZero() {
		record.ApprovalRequestID = approvalRequestID.String()
	}
	return record, nil
}

// ViolationRepository defines the interface for violation audit persistence.
type ViolationRepository interface {
	Create(ctx context.Context, record *ViolationRecord) error
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*ViolationRecord, error)
	CountBySeverity(ctx context.Context, severity events.Severity, since time.Time) (int64, error)
}

// NewViolationRepository creates a violation repository. With a database
// pool it uses PostgreSQL; otherwise it falls back to in-memory storage.
func NewViolationRepository(_ context.Context, p pool.Pool) ViolationRepository {
	if p != nil {
		return &PGViolationRepository{pool: p}
	}
	return &MemoryViolationRepository{}
}

// PGViolationRepository is the PostgreSQL implementation of ViolationRepository.
type PGViolationRepository struct {
	pool pool.Pool
}

func (r *PGViolationRepository) db(ctx context.Context, readOnly bool) *gorm.DB {
	if r.pool == nil {
		return nil
	}
	return r.pool.DB(ctx, readOnly)
}

// Create inserts a violation audit row.
func (r *PGViolationRepository) Create(ctx context.Context, record *ViolationRecord) error {
	db := r.db(ctx, false)
	if db == nil {
		return ErrDatabaseUnavailable
	}

	record.CreatedAt = time.Now()
	return db.Create(record).Error
}

// ListByAgent lists an agent's violations, newest first.
func (r *PGViolationRepository) ListByAgent(
	ctx context.Context,
	agentID string,
	limit int,
) ([]*ViolationRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var records []*ViolationRecord
	query := db.Where("agent_id = ?", agentID).Order("detected_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountBySeverity counts violations of a severity detected since a time.
func (r *PGViolationRepository) CountBySeverity(
	ctx context.Context,
	severity events.Severity,
	since time.Time,
) (int64, error) {
	db := r.db(ctx, true)
	if db == nil {
		return 0, ErrDatabaseUnavailable
	}

	var count int64
	err := db.Model(&ViolationRecord{}).
		Where("severity = ? AND detected_at >= ?", string(severity), since).
		Count(&count).Error
	return count, err
}

// MemoryViolationRepository is the in-memory implementation of ViolationRepository.
type MemoryViolationRepository struct {
	mu      sync.RWMutex
	records []*ViolationRecord
}

// NewMemoryViolationRepository creates an in-memory violation repository.
func NewMemoryViolationRepository() *MemoryViolationRepository {
	return &MemoryViolationRepository{}
}

// Create inserts a violation audit row.
func (r *MemoryViolationRepository) Create(_ context.Context, record *ViolationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.CreatedAt = time.Now()
	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

// ListByAgent lists an agent's violations, newest first.
func (r *MemoryViolationRepository) ListByAgent(
	_ context.Context,
	agentID string,
	limit int,
) ([]*ViolationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*ViolationRecord
	for _, record := range r.records {
		if record.AgentID == agentID {
			copied := *record
			records = append(records, &copied)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].DetectedAt.After(records[j].DetectedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// CountBySeverity counts violations of a severity detected since a time.
func (r *MemoryViolationRepository) CountBySeverity(
	_ context.Context,
	severity events.Severity,
	since time.Time,
) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, record := range r.records {
		if record.Severity == string(severity) && !record.DetectedAt.Before(since) {
			count++
		}
	}
	return count, nil
}
