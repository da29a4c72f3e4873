package recon

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/recondesk/recon-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateRunWithBreaks persists a run and its breaks in one transaction.
func (d *Database) CreateRunWithBreaks(run *ReconciliationRun, breaks []types.Break) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(breaks) == 0 {
			return nil
		}
		return tx.CreateInBatches(breaks, 100).Error
	})
}

func (d *Database) GetRun(runID string) (*ReconciliationRun, error) {
	var run ReconciliationRun
	if err := d.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (d *Database) UpdateRun(run *ReconciliationRun) error {
	return d.db.Save(run).Error
}

func (d *Database) UpdateRunStatus(runID string, status string) error {
	result := d.db.Model(&ReconciliationRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return errors.New("reconciliation run not found")
	}

	return nil
}

func (d *Database) GetRunsByStatus(status string) ([]ReconciliationRun, error) {
	var runs []ReconciliationRun
	if err := d.db.Where("status = ?", status).Order("created_at ASC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (d *Database) GetClientRuns(clientID string) ([]ReconciliationRun, error) {
	var runs []ReconciliationRun
	if err := d.db.Where("client_id = ?", clientID).Order("created_at DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// GetBreaksByRunID returns a run's breaks in detection order.
func (d *Database) GetBreaksByRunID(runID string) ([]types.Break, error) {
	var breaks []types.Break
	if err := d.db.Where("run_id = ?", runID).Order("id ASC").Find(&breaks).Error; err != nil {
		return nil, err
	}
	return breaks, nil
}

// SaveAnnotatedBreaks writes the narrative fields back onto persisted
// breaks and updates the run's annotation counters in one transaction.
// Only annotation columns are touched; the deterministic columns keep
// their stored values.
func (d *Database) SaveAnnotatedBreaks(run *ReconciliationRun, breaks []types.Break) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		for i := range breaks {
			brk := &breaks[i]
			if !brk.Annotated() {
				continue
			}
			err := tx.Model(&types.Break{}).
				Where("break_id = ?", brk.BreakID).
				Updates(map[string]interface{}{
					"severity":          brk.Severity,
					"root_cause":        brk.RootCause,
					"explanation":       brk.Explanation,
					"recommendation":    brk.Recommendation,
					"confidence":        brk.Confidence,
					"remediation_class": brk.RemediationClass,
					"annotated_at":      brk.AnnotatedAt,
				}).Error
			if err != nil {
				return err
			}
		}
		return tx.Save(run).Error
	})
}
