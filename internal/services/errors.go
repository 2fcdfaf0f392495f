// Package services holds the business logic of the contact backend.
// This file centralizes service-level error values so handlers can map them
// to HTTP status codes with errors.Is.
package services

import "errors"

var (
	// ErrValidation is returned when name, email or message is missing or
	// empty. Nothing is stored and no notification is sent.
	ErrValidation = errors.New("name, email and message are required")

	// ErrPersistence wraps a failed insert. The notifier is never invoked
	// when a submission could not be stored.
	ErrPersistence = errors.New("submission could not be stored")

	// ErrSubmissionNotFound indicates that no submission has the requested id.
	ErrSubmissionNotFound = errors.New("submission not found")
)
