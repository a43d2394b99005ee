package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agenthive/governor/internal/events"
)

// ErrVelocityNotFound is returned when no measurement exists for an agent.
var ErrVelocityNotFound = errors.New("no velocity measurement for agent")

// VelocityRecord holds the latest measurement window per agent. One row per
// agent, upserted as windows arrive; history lives with the telemetry
// collector, the governor only needs the current rate for budget queries.
type VelocityRecord struct {
	AgentID              string    `json:"agent_id" gorm:"primaryKey"`
	CapabilityGainPerDay float64   `json:"capability_gain_per_day"`
	Measurement          []byte    `json:"measurement" gorm:"type:jsonb"`
	MeasuredAt           time.Time `json:"measured_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName returns the table name for the VelocityRecord model.
func (VelocityRecord) TableName() string {
	return "agent_velocities"
}

// NewVelocityRecord converts a measurement to its persisted snapshot form.
func NewVelocityRecord(m *events.VelocityMeasurement) (*VelocityRecord, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal velocity measurement: %w", err)
	}
	return &VelocityRecord{
		AgentID:              m.AgentID.String(),
		CapabilityGainPerDay: m.CapabilityGainPerDay,
		Measurement:          data,
		MeasuredAt:           m.MeasuredAt,
	}, nil
}

// ToMeasurement converts the snapshot back to the domain form.
func (r *VelocityRecord) ToMeasurement() (*events.VelocityMeasurement, error) {
	var m events.VelocityMeasurement
	if err := json.Unmarshal(r.Measurement, &m); err != nil {
		return nil, fmt.Errorf("unmarshal velocity measurement: %w", err)
	}
	return &m, nil
}

// VelocityRepository stores the latest measurement per agent.
type VelocityRepository interface {
	Upsert(ctx context.Context, record *VelocityRecord) error
	GetByAgent(ctx context.Context, agentID string) (*VelocityRecord, error)
}

// NewVelocityRepository creates a velocity repository. With a database pool
// it uses PostgreSQL; otherwise it falls back to in-memory storage.
func NewVelocityRepository(_ context.Context, p pool.Pool) VelocityRepository {
	if p != nil {
		return &PGVelocityRepository{pool: p}
	}
	return &MemoryVelocityRepository{records: make(map[string]*VelocityRecord)}
}

// PGVelocityRepository is the PostgreSQL implementation of VelocityRepository.
type PGVelocityRepository struct {
	pool pool.Pool
}

func (r *PGVelocityRepository) db(ctx context.Context, readOnly bool) *gorm.DB {
	if r.pool == nil {
		return nil
	}
	return r.pool.DB(ctx, readOnly)
}

// Upsert inserts or replaces the agent's latest measurement.
func (r *PGVelocityRepository) Upsert(ctx context.Context, record *VelocityRecord) error {
	db := r.db(ctx, false)
	if db == nil {
		return ErrDatabaseUnavailable
	}

	record.UpdatedAt = time.Now()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}},
		UpdateAll: true,
	}).Create(record).Error
}

// GetByAgent returns the agent's latest measurement snapshot.
func (r *PGVelocityRepository) GetByAgent(ctx context.Context, agentID string) (*VelocityRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var record VelocityRecord
	if err := db.First(&record, "agent_id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrVelocityNotFound, agentID)
		}
		return nil, err
	}
	return &record, nil
}

// MemoryVelocityRepository is the in-memory implementation of VelocityRepository.
type MemoryVelocityRepository struct {
	mu      sync.RWMutex
	records map[string]*VelocityRecord
}

// NewMemoryVelocityRepository creates an in-memory velocity repository.
func NewMemoryVelocityRepository() *MemoryVelocityRepository {
	return &MemoryVelocityRepository{records: make(map[string]*VelocityRecord)}
}

// Upsert inserts or replaces the agent's latest measurement.
func (r *MemoryVelocityRepository) Upsert(_ context.Context, record *VelocityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.UpdatedAt = time.Now()
	stored := *record
	r.records[record.AgentID] = &stored
	return nil
}

// GetByAgent returns the agent's latest measurement snapshot.
func (r *MemoryVelocityRepository) GetByAgent(_ context.Context, agentID string) (*VelocityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVelocityNotFound, agentID)
	}

	copied := *record
	return &copied, nil
}
