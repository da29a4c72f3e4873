package migrations

import (
	"gorm.io/gorm"

	"github.com/recondesk/recon-api/internal/types"
)

// AddBreaks creates the breaks table, including the nullable narrative
// annotation columns.
func AddBreaks(db *gorm.DB) error {
	return db.AutoMigrate(&types.Break{})
}
