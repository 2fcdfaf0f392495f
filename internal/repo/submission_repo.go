// Package repo implements the data persistence layer for contact submissions,
// backed by GORM. This file provides repository functions for the Submission
// model.
//
// The table is append-only: there is a create operation and read helpers for
// operators, but nothing here updates or deletes a row.
//
// Error semantics:
//   - GetSubmission returns ErrNotFound when the id does not exist.
//   - Every other DB error (missing table, I/O, constraint) is propagated raw;
//     the service layer classifies it.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/cis-contact/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSubmission inserts one submission row and returns it with the
// store-assigned ID and CreatedAt. The insert is a single statement, so it is
// either committed before this returns or not written at all.
func CreateSubmission(ctx context.Context, db *gorm.DB, name, email, message string) (*domain.Submission, error) {
	s := &domain.Submission{
		Name:      name,
		Email:     email,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSubmission fetches a submission by ID.
func GetSubmission(ctx context.Context, db *gorm.DB, id uint) (*domain.Submission, error) {
	var s domain.Submission
	err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSubmissions uses a raw COUNT so a missing table surfaces as an error.
func CountSubmissions(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages").Scan(&total).Error
	return total, err
}

// ListSubmissionsPage returns a page of submissions, newest first (ID DESC).
func ListSubmissionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Submission, error) {
	var out []domain.Submission
	err := db.WithContext(ctx).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
