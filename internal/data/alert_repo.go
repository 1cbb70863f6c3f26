package data

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"FuseGate/internal/model"
	perrors "FuseGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"
)

// recentCacheSize bounds the read cache for alert history queries.
const (
	recentCacheSize = 32
	recentCacheTTL  = 30 * time.Second
)

// AlertRecord is the persistence schema for one alert firing.
type AlertRecord struct {
	ID             string     `gorm:"primaryKey;size:128"`
	RuleID         string     `gorm:"size:64;index"`
	Severity       string     `gorm:"size:16"`
	Message        string     `gorm:"size:512"`
	Metrics        string     `gorm:"type:json"`
	FiredAt        time.Time  `gorm:"index"`
	Acknowledged   bool       `gorm:"default:false"`
	AcknowledgedBy string     `gorm:"size:128"`
	AcknowledgedAt *time.Time ``
}

// TableName sets the table name for GORM.
func (AlertRecord) TableName() string {
	return "alert_history"
}

// AlertRepo persists alert history. With a database configured it writes
// through to MySQL; without one it keeps a bounded in-memory history so the
// service still works in minimal deployments.
//
// Reads go through a small expiring LRU so status dashboards polling the
// history do not hammer the database.
type AlertRepo struct {
	db     *gorm.DB
	logger *log.Helper

	cache *expirable.LRU[string, []model.Alert]

	// in-memory fallback, used when db is nil
	mu     sync.Mutex
	memory []*model.Alert
}

// memoryHistoryLimit bounds the fallback history.
const memoryHistoryLimit = 1000

// NewAlertRepo creates the repo. db may be nil (no database configured);
// persistence then degrades to in-memory history.
func NewAlertRepo(db *gorm.DB, logger log.Logger) (*AlertRepo, error) {
	helper := log.NewHelper(logger)

	if db != nil {
		if err := db.AutoMigrate(&AlertRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate alert_history: %w", err)
		}
		helper.Info("alert history persistence enabled")
	} else {
		helper.Warn("no database configured, alert history is in-memory only")
	}

	return &AlertRepo{
		db:     db,
		logger: helper,
		cache:  expirable.NewLRU[string, []model.Alert](recentCacheSize, nil, recentCacheTTL),
	}, nil
}

// AppendAlert stores one alert firing.
func (r *AlertRepo) AppendAlert(ctx context.Context, alert *model.Alert) error {
	defer r.cache.Purge()

	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if len(r.memory) >= memoryHistoryLimit {
			r.memory = r.memory[1:]
		}
		clone := *alert
		r.memory = append(r.memory, &clone)
		return nil
	}

	metricsJSON, err := json.Marshal(alert.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal alert metrics: %w", err)
	}

	record := &AlertRecord{
		ID:             alert.ID,
		RuleID:         alert.RuleID,
		Severity:       string(alert.Severity),
		Message:        alert.Message,
		Metrics:        string(metricsJSON),
		FiredAt:        alert.Timestamp,
		Acknowledged:   alert.Acknowledged,
		AcknowledgedBy: alert.AcknowledgedBy,
		AcknowledgedAt: alert.AcknowledgedAt,
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		dbErr := perrors.ClassifyDBError(err)
		r.logger.Errorf("failed to persist alert %s: %v", alert.ID, dbErr)
		return dbErr
	}
	return nil
}

// MarkAcknowledged records an acknowledgement against a stored alert.
func (r *AlertRepo) MarkAcknowledged(ctx context.Context, alertID, actor string, at time.Time) error {
	defer r.cache.Purge()

	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, a := range r.memory {
			if a.ID == alertID {
				a.Acknowledged = true
				a.AcknowledgedBy = actor
				ackAt := at
				a.AcknowledgedAt = &ackAt
				return nil
			}
		}
		return gorm.ErrRecordNotFound
	}

	result := r.db.WithContext(ctx).Model(&AlertRecord{}).
		Where("id = ?", alertID).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_by": actor,
			"acknowledged_at": at,
		})
	if result.Error != nil {
		return perrors.ClassifyDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Recent returns up to limit alerts, newest first.
func (r *AlertRepo) Recent(ctx context.Context, limit int) ([]model.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	cacheKey := fmt.Sprintf("recent:%d", limit)
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached, nil
	}

	var alerts []model.Alert
	if r.db == nil {
		r.mu.Lock()
		for i := len(r.memory) - 1; i >= 0 && len(alerts) < limit; i-- {
			alerts = append(alerts, *r.memory[i])
		}
		r.mu.Unlock()
	} else {
		var records []AlertRecord
		err := r.db.WithContext(ctx).
			Order("fired_at DESC").
			Limit(limit).
			Find(&records).Error
		if err != nil {
			return nil, perrors.ClassifyDBError(err)
		}
		for _, rec := range records {
			alerts = append(alerts, recordToAlert(rec))
		}
	}

	r.cache.Add(cacheKey, alerts)
	return alerts, nil
}

func recordToAlert(rec AlertRecord) model.Alert {
	alert := model.Alert{
		ID:             rec.ID,
		RuleID:         rec.RuleID,
		Timestamp:      rec.FiredAt,
		Severity:       model.AlertSeverity(rec.Severity),
		Message:        rec.Message,
		Acknowledged:   rec.Acknowledged,
		AcknowledgedBy: rec.AcknowledgedBy,
		AcknowledgedAt: rec.AcknowledgedAt,
	}
	if rec.Metrics != "" {
		// A corrupt metrics column degrades to zero metrics, it does not
		// fail the whole query.
		_ = json.Unmarshal([]byte(rec.Metrics), &alert.Metrics)
	}
	return alert
}
