package stubserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"credits/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// Store is the stub ledger's persistence layer. It uses sqlite by default
// and postgres when DATABASE_URL is configured.
type Store struct {
	db             *gorm.DB
	initialCredits int
}

// OpenStore connects to the configured database and migrates the schema.
func OpenStore(cfg config.StubConfig) (*Store, error) {
	var dialector gorm.Dialector
	if cfg.DatabaseURL != "" {
		dialector = postgres.Open(cfg.DatabaseURL)
	} else {
		dialector = sqlite.Open(cfg.SQLitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&User{}, &Account{}, &Purchase{}, &Usage{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db, initialCredits: cfg.InitialCredits}, nil
}

// SeedUser creates a dev user with a bcrypt-hashed password. Existing emails
// are left untouched.
func (s *Store) SeedUser(email, password string) error {
	var existing User
	if err := s.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.db.Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Authenticate verifies email/password and returns the user.
func (s *Store) Authenticate(email, password string) (*User, error) {
	var user User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// GetOrCreateAccount returns the user's ledger row, granting the initial
// credits on first access.
func (s *Store) GetOrCreateAccount(userID string) (*Account, error) {
	var account Account
	err := s.db.Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = Account{
			UserID:         userID,
			Balance:        s.initialCredits,
			InitialCredits: s.initialCredits,
		}
		if err := s.db.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		return &account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return &account, nil
}

// PurchaseInput is what the purchase endpoint records.
type PurchaseInput struct {
	Credits          int
	Source           string
	TransactionRefID *string
	ProductID        *string
	PriceCents       *int64
	Currency         *string
}

// RecordPurchase credits the account and appends a purchase row in one
// transaction. The balance moves via a relative SQL update so concurrent
// purchases never lose an increment.
func (s *Store) RecordPurchase(userID string, in PurchaseInput) (*Account, error) {
	if _, err := s.GetOrCreateAccount(userID); err != nil {
		return nil, err
	}

	var account Account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Account{}).Where("user_id = ?", userID).
			Update("balance", gorm.Expr("balance + ?", in.Credits)).Error; err != nil {
			return err
		}

		row := Purchase{
			ID:               uuid.NewString(),
			UserID:           userID,
			Credits:          in.Credits,
			Source:           in.Source,
			TransactionRefID: in.TransactionRefID,
			ProductID:        in.ProductID,
			CreatedAt:        time.Now().UTC(),
		}
		if in.PriceCents != nil {
			row.PriceCents = *in.PriceCents
		}
		if in.Currency != nil {
			row.Currency = *in.Currency
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).First(&account).Error
	})
	if err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}
	return &account, nil
}

// RecordUsage debits one credit and appends a usage row. A depleted balance
// yields success=false with the balance unchanged. The decrement is a
// conditional SQL update so concurrent usages can neither lose a debit nor
// push the balance below zero.
func (s *Store) RecordUsage(userID string, filename *string) (balance int, success bool, err error) {
	if _, err := s.GetOrCreateAccount(userID); err != nil {
		return 0, false, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).
			Where("user_id = ? AND balance > 0", userID).
			Update("balance", gorm.Expr("balance - ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			success = true
			row := Usage{
				ID:        uuid.NewString(),
				UserID:    userID,
				Credits:   1,
				Filename:  filename,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		var account Account
		if err := tx.Where("user_id = ?", userID).First(&account).Error; err != nil {
			return err
		}
		balance = account.Balance
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("record usage: %w", err)
	}
	return balance, success, nil
}

// Purchases returns the user's purchase rows, most recent first.
func (s *Store) Purchases(userID string, limit, offset int) ([]Purchase, error) {
	var rows []Purchase
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return rows, nil
}

// Usages returns the user's usage rows, most recent first.
func (s *Store) Usages(userID string, limit, offset int) ([]Usage, error) {
	var rows []Usage
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list usages: %w", err)
	}
	return rows, nil
}
