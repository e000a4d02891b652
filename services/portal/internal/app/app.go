package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"healthconnect/internal/util"
	"healthconnect/pkg/domain"
	"healthconnect/pkg/storage"
	"healthconnect/pkg/store"
	"healthconnect/services/portal/internal/notify"
)

// Config holds the dependencies of the portal application.
type Config struct {
	Store            store.PortalStore
	Buckets          storage.Buckets
	Notifier         *notify.Service
	PresignTTL       time.Duration
	MaxDocumentBytes int64
	MaxImageBytes    int64
	Logger           *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   domain.Role
}

// App implements the patient, doctor and admin portal operations.
type App struct {
	store      store.PortalStore
	buckets    storage.Buckets
	notifier   *notify.Service
	presignTTL time.Duration
	maxDocBody int64
	maxImage   int64
	logger     *slog.Logger
	now        func() time.Time
}

// New validates the dependencies and builds the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("portal store required")
	}
	if cfg.Buckets.DoctorDocuments == nil || cfg.Buckets.ProfilePhotos == nil || cfg.Buckets.ComplaintAttachments == nil {
		return nil, errors.New("all storage buckets required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewService(cfg.Store, nil, cfg.Logger)
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = 10 << 20
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 5 << 20
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &App{
		store:      cfg.Store,
		buckets:    cfg.Buckets,
		notifier:   cfg.Notifier,
		presignTTL: cfg.PresignTTL,
		maxDocBody: cfg.MaxDocumentBytes,
		maxImage:   cfg.MaxImageBytes,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}, nil
}

// Notifier exposes the notification service shared with the reminder job.
func (a *App) Notifier() *notify.Service {
	return a.notifier
}

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func requireRole(actor Actor, roles ...domain.Role) error {
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return ErrForbidden
}

// cleanText sanitizes free text and reports its length in runes.
func cleanText(s string) (string, int) {
	s = util.SanitizeText(s)
	return s, utf8.RuneCountInString(s)
}

func validPhone(phone string) bool {
	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

func newID() string {
	return uuid.NewString()
}
