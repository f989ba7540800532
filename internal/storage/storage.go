// Package storage persists participants, the waiting queue, sessions and
// messages with gorm. PostgreSQL is the production backend; SQLite serves
// local development and tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"strangerchat/backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNoPartnerAvailable  = errors.New("no partner available")
	ErrAlreadyMatched      = errors.New("participant already has an active session")
	ErrDuplicateSession    = errors.New("active session already exists for this pair")
	ErrNotQueued           = errors.New("participant is not in the waiting queue")
	ErrSelfMatch           = errors.New("participant cannot be paired with itself")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionEnded        = errors.New("session has ended")
	ErrNotParticipant      = errors.New("participant is not part of this session")
	ErrParticipantNotFound = errors.New("participant not found")
)

// Storage is everything the coordination engine needs from the backend.
type Storage interface {
	CreateParticipant(ctx context.Context) (*models.Participant, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	FindOrCreateTelegramParticipant(ctx context.Context, telegramID int64) (*models.Participant, error)
	TouchParticipant(ctx context.Context, id string, at time.Time) error
	TelegramParticipantsInSessions(ctx context.Context) ([]models.Participant, error)

	Enqueue(ctx context.Context, participantID string) (*models.QueueEntry, error)
	Dequeue(ctx context.Context, participantID string) error
	RemoveFromQueue(ctx context.Context, participantIDs ...string) (int64, error)
	QueueEntry(ctx context.Context, participantID string) (*models.QueueEntry, error)
	QueueEntries(ctx context.Context) ([]models.QueueEntry, error)
	OldestQueuedExcept(ctx context.Context, participantID string) (*models.QueueEntry, error)

	MatchAndCreateSession(ctx context.Context, participantID string) (*models.Session, error)
	CreateSession(ctx context.Context, a, b string) (*models.Session, error)
	EndSession(ctx context.Context, sessionID string) (*models.Session, bool, error)
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	ActiveSessionFor(ctx context.Context, participantID string) (*models.Session, error)
	ActiveSessionBetween(ctx context.Context, a, b string) (*models.Session, error)

	AppendMessage(ctx context.Context, sessionID, senderID, content string) (*models.Message, error)
	Messages(ctx context.Context, sessionID string) ([]models.Message, error)

	StaleQueueEntries(ctx context.Context, cutoff time.Time) ([]models.QueueEntry, error)
	StaleActiveSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error)
	PurgeMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service is the gorm implementation of Storage.
type Service struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// Now is the clock used for every timestamp the store writes.
	Now func() time.Time
}

var _ Storage = (*Service)(nil)

// NewStorageService wraps an open gorm connection.
func NewStorageService(db *gorm.DB, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		DB:     db,
		Logger: log,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to the configured database. SQLite is limited to a single
// connection, which serializes every transaction and makes the pairing
// transaction atomic without row locks.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: newGormLogger(os.Stderr)}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	return db, nil
}

// newGormLogger reports slow queries and errors. Lookups that find nothing
// are a normal outcome for queue and session polls and are not logged.
func newGormLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate creates or updates every table the engine uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Participant{},
		&models.QueueEntry{},
		&models.Session{},
		&models.Message{},
	)
}

// pairingLockKey identifies the PostgreSQL advisory lock that serializes
// queue mutations and session creation.
const pairingLockKey = 0x5eed_c4a7

// lockPairing takes the transaction-scoped pairing lock. On SQLite the
// single connection already serializes transactions.
func lockPairing(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", pairingLockKey).Error
}
