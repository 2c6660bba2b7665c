package stubserver

import "time"

// User is a seeded dev account that can mint tokens against the stub.
type User struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex" json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account is the per-user ledger row. The first balance read creates it with
// the configured initial credit grant.
type Account struct {
	UserID         string `gorm:"primaryKey" json:"user_id"`
	Balance        int    `json:"balance"`
	InitialCredits int    `json:"initial_credits"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Purchase is an append-only purchase ledger entry. JSON tags match the wire
// contract the client parses.
type Purchase struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	UserID           string    `gorm:"index" json:"-"`
	Credits          int       `json:"credits"`
	PriceCents       int64     `json:"price_cents"`
	Currency         string    `json:"currency"`
	Source           string    `json:"source"`
	TransactionRefID *string   `json:"transaction_ref_id"`
	ProductID        *string   `json:"product_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// Usage is an append-only usage ledger entry.
type Usage struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index" json:"-"`
	Credits   int       `json:"credits"`
	Filename  *string   `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}
