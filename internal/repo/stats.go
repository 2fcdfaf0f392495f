// Package repo implements the data persistence layer for contact submissions,
// backed by GORM. This file provides a small aggregate query used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/cis-contact/internal/domain"
)

// SubmissionsStats returns the total number of stored submissions and the
// highest ID among them. Because rows are append-only and IDs strictly
// increase, the pair changes whenever the table does.
//
// When the table is empty, it returns (0, 0, nil).
func SubmissionsStats(ctx context.Context, db *gorm.DB) (count int64, maxID uint, err error) {
	if err = db.WithContext(ctx).Model(&domain.Submission{}).Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}

	var row struct {
		ID uint
	}
	err = db.WithContext(ctx).Model(&domain.Submission{}).
		Select("id").Order("id DESC").Limit(1).Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return count, row.ID, nil
}
