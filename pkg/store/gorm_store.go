package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"healthconnect/pkg/domain"
)

const migrateLockID int64 = 48151623

// GormStore implements AccountStore, ResetCodeStore and PortalStore using
// GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&AccountModel{},
			&AdminUserModel{},
			&ResetCodeModel{},
			&ProfileModel{},
			&DoctorProfileModel{},
			&InstitutionModel{},
			&AppointmentModel{},
			&ChatSessionModel{},
			&ChatMessageModel{},
			&ComplaintModel{},
			&MedicationRefillModel{},
			&NotificationModel{},
			&HealthcareAlertModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func translateWriteErr(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// first loads one row into dest and reports whether it existed.
func (s *GormStore) first(dest any, query string, args ...any) (bool, error) {
	if err := s.db.Where(query, args...).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *GormStore) count(model any, query string, args ...any) (int, error) {
	var n int64
	tx := s.db.Model(model)
	if query != "" {
		tx = tx.Where(query, args...)
	}
	if err := tx.Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// CreateAccount inserts the account and its profile in one transaction.
func (s *GormStore) CreateAccount(a domain.Account, p domain.Profile) error {
	account := accountToModel(a)
	profile := profileToModel(p)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		return tx.Create(&profile).Error
	})
	return translateWriteErr(err)
}

// GetAccountByEmail looks up an account by normalized email.
func (s *GormStore) GetAccountByEmail(email string) (domain.Account, bool, error) {
	var model AccountModel
	ok, err := s.first(&model, "email = ?", email)
	if !ok || err != nil {
		return domain.Account{}, false, err
	}
	return accountFromModel(model), true, nil
}

// GetAccountByID returns an account by ID.
func (s *GormStore) GetAccountByID(id string) (domain.Account, bool, error) {
	var model AccountModel
	ok, err := s.first(&model, "id = ?", id)
	if !ok || err != nil {
		return domain.Account{}, false, err
	}
	return accountFromModel(model), true, nil
}

// UpdatePassword replaces the stored password hash.
func (s *GormStore) UpdatePassword(userID, passwordHash string, at time.Time) error {
	res := s.db.Model(&AccountModel{}).Where("id = ?", userID).Updates(map[string]any{
		"password_hash": passwordHash,
		"updated_at":    at.UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAccountStatus enables or disables an account.
func (s *GormStore) SetAccountStatus(userID string, status domain.AccountStatus, at time.Time) error {
	res := s.db.Model(&AccountModel{}).Where("id = ?", userID).Updates(map[string]any{
		"status":     string(status),
		"updated_at": at.UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsAdmin reports whether the account is listed in admin_users.
func (s *GormStore) IsAdmin(userID string) (bool, error) {
	n, err := s.count(&AdminUserModel{}, "user_id = ?", userID)
	return n > 0, err
}

// AddAdmin grants admin access. Granting twice is a no-op.
func (s *GormStore) AddAdmin(userID string, at time.Time) error {
	model := AdminUserModel{UserID: userID, CreatedAt: at.UTC()}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// RemoveAdmin revokes admin access and reports whether it was granted.
func (s *GormStore) RemoveAdmin(userID string) (bool, error) {
	res := s.db.Where("user_id = ?", userID).Delete(&AdminUserModel{})
	return res.RowsAffected > 0, res.Error
}

// ReplaceResetCode drops any previous code for the account and stores a new one.
func (s *GormStore) ReplaceResetCode(userID, codeHash string, expiresAt time.Time) (domain.ResetCode, error) {
	model := ResetCodeModel{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  codeHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&ResetCodeModel{}).Error; err != nil {
			return err
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.ResetCode{}, translateWriteErr(err)
	}
	return resetCodeFromModel(model), nil
}

// FindResetCode returns the account's unexpired code.
func (s *GormStore) FindResetCode(userID string, now time.Time) (domain.ResetCode, bool, error) {
	var model ResetCodeModel
	ok, err := s.first(&model, "user_id = ? AND expires_at >= ?", userID, now.UTC())
	if !ok || err != nil {
		return domain.ResetCode{}, false, err
	}
	return resetCodeFromModel(model), true, nil
}

// ConsumeResetCode sets the new password and deletes the code atomically.
func (s *GormStore) ConsumeResetCode(codeID, userID, passwordHash string, at time.Time) (bool, error) {
	consumed := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", codeID, userID).Delete(&ResetCodeModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		upd := tx.Model(&AccountModel{}).Where("id = ?", userID).Updates(map[string]any{
			"password_hash": passwordHash,
			"updated_at":    at.UTC(),
		})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrNotFound
		}
		consumed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

// DeleteResetCode removes a code by ID.
func (s *GormStore) DeleteResetCode(id string) error {
	return s.db.Where("id = ?", id).Delete(&ResetCodeModel{}).Error
}

// DeleteExpiredResetCodes removes codes that expired before now.
func (s *GormStore) DeleteExpiredResetCodes(now time.Time) (int, error) {
	res := s.db.Where("expires_at < ?", now.UTC()).Delete(&ResetCodeModel{})
	return int(res.RowsAffected), res.Error
}

func accountToModel(a domain.Account) AccountModel {
	return AccountModel{
		ID:           a.ID,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Role:         string(a.Role),
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func accountFromModel(m AccountModel) domain.Account {
	status := domain.AccountStatus(m.Status)
	if status == "" {
		status = domain.AccountActive
	}
	return domain.Account{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func resetCodeFromModel(m ResetCodeModel) domain.ResetCode {
	return domain.ResetCode{
		ID:        m.ID,
		UserID:    m.UserID,
		CodeHash:  m.CodeHash,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}
