// Package services – ContactService
//
// ContactService owns the submission flow: validate the three fields, append
// the row synchronously, then hand the stored submission to the notifier on a
// tracked goroutine. The notification outcome is logged and counted but never
// reaches the caller.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/cis-contact/internal/domain"
	"github.com/tbourn/cis-contact/internal/notify"
	"github.com/tbourn/cis-contact/internal/observability"
)

// DefaultNotifyTimeout bounds one notification when none is configured.
const DefaultNotifyTimeout = 30 * time.Second

// SubmissionRepo is the persistence contract required by ContactService.
type SubmissionRepo interface {
	// CreateSubmission appends one row and returns it with id and created_at set.
	CreateSubmission(ctx context.Context, db *gorm.DB, name, email, message string) (*domain.Submission, error)

	// GetSubmission fetches one row by id.
	GetSubmission(ctx context.Context, db *gorm.DB, id uint) (*domain.Submission, error)

	// CountSubmissions returns the number of stored rows.
	CountSubmissions(ctx context.Context, db *gorm.DB) (int64, error)

	// ListSubmissionsPage returns a page of rows, newest first.
	ListSubmissionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Submission, error)
}

// ContactService validates, stores and relays contact submissions.
// It keeps no per-request state and is safe for concurrent use.
type ContactService struct {
	DB       *gorm.DB
	Repo     SubmissionRepo
	Notifier notify.Notifier

	// NotifyTimeout bounds each notification attempt.
	NotifyTimeout time.Duration

	inflight sync.WaitGroup
}

// NewContactService wires a ContactService. A nil notifier means delivery is
// skipped.
func NewContactService(db *gorm.DB, r SubmissionRepo, n notify.Notifier, timeout time.Duration) *ContactService {
	if n == nil {
		n = notify.Nop{}
	}
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return &ContactService{DB: db, Repo: r, Notifier: n, NotifyTimeout: timeout}
}

// Submit validates and stores one submission, then dispatches its
// notification without waiting for it.
//
// Errors: ErrValidation when a field is empty, an error wrapping
// ErrPersistence when the insert fails. A failed notification is not an error.
func (s *ContactService) Submit(ctx context.Context, name, email, message string) (*domain.Submission, error) {
	tr := otel.Tracer("services/ContactService")
	ctx, span := tr.Start(ctx, "Submit")
	defer span.End()

	// Presence is the only check; values are stored exactly as received.
	if name == "" || email == "" || message == "" {
		observability.CountSubmission(observability.OutcomeInvalid)
		span.SetAttributes(attribute.String("submission.outcome", observability.OutcomeInvalid))
		return nil, ErrValidation
	}

	sub, err := s.Repo.CreateSubmission(ctx, s.DB, name, email, message)
	if err != nil {
		observability.CountSubmission(observability.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	observability.CountSubmission(observability.OutcomeStored)
	span.SetAttributes(
		attribute.String("submission.outcome", observability.OutcomeStored),
		attribute.Int64("submission.id", int64(sub.ID)),
	)
	loggerFor(ctx).Info().Uint("submission_id", sub.ID).Msg("submission stored")

	s.dispatch(ctx, *sub)
	return sub, nil
}

// dispatch runs one notification attempt on a tracked goroutine. The attempt
// outlives the request: its context keeps request values but not its
// cancellation, and is bounded by NotifyTimeout.
func (s *ContactService) dispatch(ctx context.Context, sub domain.Submission) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		lg := loggerFor(ctx)
		defer func() {
			if rec := recover(); rec != nil {
				observability.CountNotification(observability.NotifyFailed, 0)
				lg.Error().Uint("submission_id", sub.ID).Interface("panic", rec).Msg("notification failed")
			}
		}()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.NotifyTimeout)
		defer cancel()

		res := s.Notifier.Notify(nctx, sub)
		switch {
		case res.Err != nil:
			observability.CountNotification(observability.NotifyFailed, res.Elapsed.Seconds())
			lg.Error().Err(res.Err).
				Uint("submission_id", sub.ID).
				Dur("elapsed", res.Elapsed).
				Msg("notification failed")
		case res.Skipped:
			observability.CountNotification(observability.NotifySkipped, 0)
			lg.Debug().Uint("submission_id", sub.ID).Msg("notification skipped")
		default:
			observability.CountNotification(observability.NotifySent, res.Elapsed.Seconds())
			lg.Info().
				Uint("submission_id", sub.ID).
				Str("to", res.To).
				Dur("elapsed", res.Elapsed).
				Msg("notification sent")
		}
	}()
}

// Wait blocks until every dispatched notification has finished.
func (s *ContactService) Wait() {
	s.inflight.Wait()
}

// List returns a page of submissions (newest first) and the total count.
func (s *ContactService) List(ctx context.Context, page, pageSize int) ([]domain.Submission, int64, error) {
	tr := otel.Tracer("services/ContactService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountSubmissions(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Submission{}, 0, nil
	}

	items, err := s.Repo.ListSubmissionsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Get returns one submission or ErrSubmissionNotFound.
func (s *ContactService) Get(ctx context.Context, id uint) (*domain.Submission, error) {
	tr := otel.Tracer("services/ContactService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.Int64("submission.id", int64(id))),
	)
	defer span.End()

	sub, err := s.Repo.GetSubmission(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubmissionNotFound
	}
	return sub, err
}

// loggerFor returns the request-scoped logger when one is attached to ctx,
// otherwise the global logger.
func loggerFor(ctx context.Context) *zerolog.Logger {
	if lg := zerolog.Ctx(ctx); lg.GetLevel() != zerolog.Disabled {
		return lg
	}
	return &log.Logger
}
