package decisionlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"perpfire/internal/advisor"
	"perpfire/internal/logger"
)

// AdvisoryRecord 一次顾问咨询的存档行。
type AdvisoryRecord struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt  time.Time      `gorm:"index" json:"createdAt"`
	Symbol     string         `gorm:"index;size:32" json:"symbol"`
	Direction  string         `gorm:"size:8" json:"direction"`
	Confidence int            `json:"confidence"`
	Score      int            `json:"score"`
	RiskLevel  string         `gorm:"size:8" json:"riskLevel"`
	Reasoning  string         `json:"reasoning"`
	FromCache  bool           `json:"fromCache"`
	Sentinel   bool           `json:"sentinel"`
	Snapshot   datatypes.JSON `json:"snapshot"`
	RawOutput  string         `json:"rawOutput"`
}

func (AdvisoryRecord) TableName() string { return "advisory_decisions" }

// Store 顾问决策日志，sqlite 落盘，仅作排查与审计，不参与交易路径。
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "data/decisions.db"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create decision log dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	if err := db.AutoMigrate(&AdvisoryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate decision log: %w", err)
	}
	return &Store{db: db}, nil
}

// Record 实现 advisor.Recorder。失败只告警，不影响交易路径。
func (s *Store) Record(ctx context.Context, snapshot advisor.MarketSnapshot, rawOutput string, advice advisor.Advice, fromCache bool) {
	if s == nil || s.db == nil {
		return
	}
	rec := AdvisoryRecord{
		CreatedAt:  time.Now(),
		Symbol:     snapshot.Symbol,
		Direction:  string(advice.Direction),
		Confidence: advice.Confidence,
		Score:      advice.Score,
		RiskLevel:  string(advice.RiskLevel),
		Reasoning:  advice.Reasoning,
		FromCache:  fromCache,
		Sentinel:   advice.Sentinel,
		Snapshot:   datatypes.JSON(snapshot.JSON()),
		RawOutput:  rawOutput,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		logger.Cat("decisionlog").Warnf("写入决策日志失败: %v", err)
	}
}

// List 最新在前。
func (s *Store) List(ctx context.Context, limit int) ([]AdvisoryRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []AdvisoryRecord
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
