// Package domain defines the persistence model for contact-form submissions.
// The type is mapped with GORM and shared by the repository, service and HTTP
// layers.
package domain

import "time"

// Submission is one contact-form message left on the site.
//
// Rows are append-only: the store assigns ID and CreatedAt on insert and this
// system never updates or deletes them afterwards.
//
// Fields:
//   - ID: store-assigned, strictly increasing (SQLite AUTOINCREMENT, never reused).
//   - Name / Email / Message: sender-supplied, non-empty at creation time.
//   - CreatedAt: insertion time, never taken from the client.
type Submission struct {
	ID        uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name"       gorm:"type:text;not null"`
	Email     string    `json:"email"      gorm:"type:text;not null"`
	Message   string    `json:"message"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "messages" }
