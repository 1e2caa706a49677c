// Package store defines the persistence interface for the trading
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing and demo mode).
//
// The store offers no transactional semantics across calls; multi-record
// consistency (e.g. deleting a student's transactions together with the
// student) is the caller's sequencing responsibility.
package store

import (
	"context"
	"errors"

	"github.com/classstock/trading-engine/internal/model"
)

var (
	// ErrClassNotFound is returned when a class id does not exist.
	ErrClassNotFound = errors.New("store: class not found")

	// ErrAccountNotFound is returned when a student id does not exist.
	ErrAccountNotFound = errors.New("store: student account not found")

	// ErrNicknameTaken is returned when a nickname is already used
	// within the same class.
	ErrNicknameTaken = errors.New("store: nickname already taken in class")
)

// Store is the persistence interface.
type Store interface {
	// --- Class configuration ---

	// CreateClass persists a new class.
	CreateClass(ctx context.Context, class *model.ClassConfig) error

	// GetClass retrieves a class by id.
	GetClass(ctx context.Context, id string) (*model.ClassConfig, error)

	// UpdateClass replaces a class's mutable configuration.
	UpdateClass(ctx context.Context, class *model.ClassConfig) error

	// --- Student accounts ---

	// CreateStudent enrolls a new account. Nicknames are unique per class.
	CreateStudent(ctx context.Context, acct *model.StudentAccount) error

	// GetStudent retrieves an account by id.
	GetStudent(ctx context.Context, id string) (*model.StudentAccount, error)

	// ListStudentsByClass returns all accounts in a class, in
	// enrollment order.
	ListStudentsByClass(ctx context.Context, classID string) ([]model.StudentAccount, error)

	// UpdateStudent replaces an account's cash and holdings.
	UpdateStudent(ctx context.Context, acct *model.StudentAccount) error

	// DeleteStudent removes an account. The caller deletes the
	// account's transactions first.
	DeleteStudent(ctx context.Context, id string) error

	// --- Immutable transaction ledger ---

	// InsertTransaction appends an immutable transaction record.
	InsertTransaction(ctx context.Context, tx *model.Transaction) error

	// TransactionsByStudent returns a student's full history in
	// chronological (insertion) order. Newest-first is a presentation
	// concern, not a ledger concern.
	TransactionsByStudent(ctx context.Context, studentID string) ([]model.Transaction, error)

	// DeleteTransactionsByStudent bulk-removes a deleted student's
	// history.
	DeleteTransactionsByStudent(ctx context.Context, studentID string) error

	// --- Simulation clock state ---

	// LoadClockState returns the persisted last-advance date, or ""
	// when the clock has never advanced.
	LoadClockState(ctx context.Context) (string, error)

	// SaveClockState persists the last-advance date.
	SaveClockState(ctx context.Context, date string) error
}
