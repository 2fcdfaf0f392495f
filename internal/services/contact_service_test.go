package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/cis-contact/internal/domain"
	"github.com/tbourn/cis-contact/internal/notify"
	"github.com/tbourn/cis-contact/internal/repo"
)

// ---------- test helpers ----------

func newContactDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:contactsvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// dbRepo proxies the repo package, like the production shim.
type dbRepo struct{}

func (dbRepo) CreateSubmission(ctx context.Context, db *gorm.DB, name, email, message string) (*domain.Submission, error) {
	return repo.CreateSubmission(ctx, db, name, email, message)
}
func (dbRepo) GetSubmission(ctx context.Context, db *gorm.DB, id uint) (*domain.Submission, error) {
	return repo.GetSubmission(ctx, db, id)
}
func (dbRepo) CountSubmissions(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountSubmissions(ctx, db)
}
func (dbRepo) ListSubmissionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Submission, error) {
	return repo.ListSubmissionsPage(ctx, db, offset, limit)
}

// failingRepo fails every create deterministically.
type failingRepo struct {
	dbRepo
	creates int
}

func (r *failingRepo) CreateSubmission(context.Context, *gorm.DB, string, string, string) (*domain.Submission, error) {
	r.creates++
	return nil, errors.New("disk I/O error")
}

func rows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	n, err := repo.CountSubmissions(context.Background(), db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func newSvc(t *testing.T, n notify.Notifier) (*ContactService, *gorm.DB) {
	t.Helper()
	db := newContactDB(t)
	return NewContactService(db, dbRepo{}, n, time.Second), db
}

// ---------- constructor ----------

func TestNewContactService_Defaults(t *testing.T) {
	s := NewContactService(nil, dbRepo{}, nil, 0)
	if _, ok := s.Notifier.(notify.Nop); !ok {
		t.Fatalf("nil notifier should become Nop, got %T", s.Notifier)
	}
	if s.NotifyTimeout != DefaultNotifyTimeout {
		t.Fatalf("timeout = %v", s.NotifyTimeout)
	}
}

// ---------- Submit ----------

func TestSubmit_ValidStoresExactlyOneRow(t *testing.T) {
	rec := &notify.Recorder{To: "owner@example.com"}
	s, db := newSvc(t, rec)

	before := time.Now().UTC().Add(-time.Second)
	sub, err := s.Submit(context.Background(), "Ana", "ana@example.com", "Hola")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()

	if sub.ID == 0 || sub.CreatedAt.Before(before) {
		t.Fatalf("id/timestamp not assigned: %+v", sub)
	}
	if got := rows(t, db); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}
	stored, err := repo.GetSubmission(context.Background(), db, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name != "Ana" || stored.Email != "ana@example.com" || stored.Message != "Hola" {
		t.Fatalf("stored row mismatch: %+v", stored)
	}
}

func TestSubmit_MissingFieldIsValidationError(t *testing.T) {
	cases := []struct{ name, email, message string }{
		{"", "ana@example.com", "Hola"},
		{"Ana", "", "Hola"},
		{"Ana", "ana@example.com", ""},
		{"", "", ""},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			rec := &notify.Recorder{}
			s, db := newSvc(t, rec)

			_, err := s.Submit(context.Background(), tc.name, tc.email, tc.message)
			s.Wait()
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if got := rows(t, db); got != 0 {
				t.Fatalf("rows = %d, want 0", got)
			}
			if rec.Calls() != 0 {
				t.Fatalf("notifier called %d times", rec.Calls())
			}
		})
	}
}

func TestSubmit_StoreFailureNeverNotifies(t *testing.T) {
	rec := &notify.Recorder{}
	fr := &failingRepo{}
	s := NewContactService(nil, fr, rec, time.Second)

	_, err := s.Submit(context.Background(), "Ana", "ana@example.com", "Hola")
	s.Wait()

	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if fr.creates != 1 {
		t.Fatalf("creates = %d, want 1", fr.creates)
	}
	if rec.Calls() != 0 {
		t.Fatalf("notifier call count = %d, want 0", rec.Calls())
	}
}

func TestSubmit_NotifierFailureStillSucceeds(t *testing.T) {
	rec := &notify.Recorder{To: "owner@example.com", Fail: errors.New("connection refused")}
	s, db := newSvc(t, rec)

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	sub, err := s.Submit(ctx, "Ana", "ana@example.com", "Hola")
	s.Wait()

	if err != nil || sub == nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got := rows(t, db); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}
	if rec.Calls() != 1 {
		t.Fatalf("notifier calls = %d, want 1", rec.Calls())
	}
	out := buf.String()
	if !strings.Contains(out, "notification failed") || !strings.Contains(out, fmt.Sprintf(`"submission_id":%d`, sub.ID)) {
		t.Fatalf("failure not logged with submission id:\n%s", out)
	}
}

func TestSubmit_NoDeduplication(t *testing.T) {
	s, db := newSvc(t, &notify.Recorder{})

	a, err := s.Submit(context.Background(), "Ana", "ana@example.com", "Hola")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := s.Submit(context.Background(), "Ana", "ana@example.com", "Hola")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	s.Wait()

	if a.ID == b.ID {
		t.Fatalf("ids must differ, both %d", a.ID)
	}
	if got := rows(t, db); got != 2 {
		t.Fatalf("rows = %d, want 2", got)
	}
}

func TestSubmit_EndToEndNotification(t *testing.T) {
	rec := &notify.Recorder{From: "site@example.com", To: "owner@example.com"}
	s, _ := newSvc(t, rec)

	if _, err := s.Submit(context.Background(), "Ana", "ana@example.com", "Hola"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()

	sent := rec.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sent))
	}
	m := sent[0]
	if m.To != "owner@example.com" {
		t.Fatalf("to = %q", m.To)
	}
	for _, want := range []string{"Ana", "ana@example.com", "Hola"} {
		if !strings.Contains(m.Text, want) {
			t.Fatalf("body missing %q:\n%s", want, m.Text)
		}
	}
}

func TestSubmit_WhitespaceOnlyFieldIsPresent(t *testing.T) {
	rec := &notify.Recorder{}
	s, db := newSvc(t, rec)

	sub, err := s.Submit(context.Background(), " ", "ana@example.com", "Hola")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()

	if got := rows(t, db); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}
	stored, err := repo.GetSubmission(context.Background(), db, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name != " " {
		t.Fatalf("name = %q, want %q", stored.Name, " ")
	}
	if rec.Calls() != 1 {
		t.Fatalf("notifier calls = %d, want 1", rec.Calls())
	}
}

func TestSubmit_StoresValuesVerbatim(t *testing.T) {
	s, db := newSvc(t, nil)

	// "e" + combining acute accent stays decomposed; surrounding whitespace stays.
	name, email, message := "  Jose\u0301 ", " jose@example.com", "Hola\n\nSaludos\n"
	sub, err := s.Submit(context.Background(), name, email, message)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()

	stored, err := repo.GetSubmission(context.Background(), db, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name != name || stored.Email != email || stored.Message != message {
		t.Fatalf("stored values changed: %q %q %q", stored.Name, stored.Email, stored.Message)
	}
	if sub.Name != name || sub.Email != email || sub.Message != message {
		t.Fatalf("returned values changed: %q %q %q", sub.Name, sub.Email, sub.Message)
	}
}

// slowNotifier blocks until its context ends or release is closed.
type slowNotifier struct {
	release  chan struct{}
	finished atomic.Bool
	ctxErr   atomic.Value
}

func (n *slowNotifier) Notify(ctx context.Context, sub domain.Submission) notify.Result {
	select {
	case <-n.release:
	case <-ctx.Done():
		n.ctxErr.Store(ctx.Err())
	}
	n.finished.Store(true)
	return notify.Result{SubmissionID: sub.ID}
}

func TestSubmit_DoesNotWaitForNotification(t *testing.T) {
	sn := &slowNotifier{release: make(chan struct{})}
	s, _ := newSvc(t, sn)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := s.Submit(ctx, "Ana", "ana@example.com", "Hola"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// The request ending must not cancel the in-flight attempt.
	cancel()
	if sn.finished.Load() {
		t.Fatal("Submit should return before the notification completes")
	}

	close(sn.release)
	s.Wait()
	if !sn.finished.Load() {
		t.Fatal("Wait returned before the notification finished")
	}
	if v := sn.ctxErr.Load(); v != nil {
		t.Fatalf("notification context was cancelled: %v", v)
	}
}

func TestSubmit_NotificationBoundedByTimeout(t *testing.T) {
	sn := &slowNotifier{release: make(chan struct{})}
	s, _ := newSvc(t, sn)
	s.NotifyTimeout = 20 * time.Millisecond

	if _, err := s.Submit(context.Background(), "Ana", "ana@example.com", "Hola"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()
	if v := sn.ctxErr.Load(); v != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", v)
	}
}

type panicNotifier struct{}

func (panicNotifier) Notify(context.Context, domain.Submission) notify.Result { panic("boom") }

func TestSubmit_NotifierPanicIsContained(t *testing.T) {
	s, db := newSvc(t, panicNotifier{})
	if _, err := s.Submit(context.Background(), "Ana", "ana@example.com", "Hola"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()
	if got := rows(t, db); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}
}

// ---------- List / Get ----------

func TestList_PaginatesNewestFirst(t *testing.T) {
	s, _ := newSvc(t, nil)
	ctx := context.Background()

	items, total, err := s.List(ctx, 1, 10)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("empty list: items=%v total=%d err=%v", items, total, err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.Submit(ctx, fmt.Sprintf("n%d", i), "e@example.com", "m"); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	s.Wait()

	items, total, err = s.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("total=%d len=%d", total, len(items))
	}
	if items[0].Name != "n2" || items[1].Name != "n1" {
		t.Fatalf("unexpected order: %q, %q", items[0].Name, items[1].Name)
	}

	// out-of-range inputs are clamped to defaults
	items, _, err = s.List(ctx, 0, 0)
	if err != nil || len(items) != 5 || items[0].Name != "n4" {
		t.Fatalf("clamped list: len=%d err=%v", len(items), err)
	}
}

func TestGet_FoundAndNotFound(t *testing.T) {
	s, _ := newSvc(t, nil)
	ctx := context.Background()

	sub, err := s.Submit(ctx, "Ana", "ana@example.com", "Hola")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Wait()

	got, err := s.Get(ctx, sub.ID)
	if err != nil || got.Email != "ana@example.com" {
		t.Fatalf("Get: %+v, %v", got, err)
	}
	if _, err := s.Get(ctx, sub.ID+100); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}
