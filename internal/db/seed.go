package db

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedAccount is a plain-text credential pair used only for seeding.
type SeedAccount struct {
	Email    string
	Password string
}

// DemoAccounts are created by SeedTestData.
var DemoAccounts = []SeedAccount{
	{Email: "ana@example.com", Password: "password"},
	{Email: "bruno@example.com", Password: "password"},
	{Email: "carla@example.com", Password: "password"},
}

// SeedTestData resets the accounts table and inserts the demo accounts.
//
// Documents are left alone: the public lists document bootstraps itself on
// first observation and sessions belong to their players.
func SeedTestData(db *gorm.DB) error {
	if err := db.Exec("DELETE FROM accounts").Error; err != nil {
		return fmt.Errorf("failed to clear accounts: %w", err)
	}

	// Reset auto-increment sequences
	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE accounts AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name = 'accounts'")
	}

	log.Println("Cleared existing accounts")

	if err := SeedAccounts(db, DemoAccounts, bcrypt.DefaultCost); err != nil {
		return err
	}
	log.Printf("Seeded %d accounts.", len(DemoAccounts))
	return nil
}

// SeedAccounts upserts accounts by email. Existing accounts keep their UID
// and get a fresh password hash.
func SeedAccounts(db *gorm.DB, accounts []SeedAccount, cost int) error {
	for _, a := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), cost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		account := Account{
			UID:          uuid.NewString(),
			Email:        strings.ToLower(strings.TrimSpace(a.Email)),
			PasswordHash: string(hash),
			Active:       true,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"password_hash", "active", "updated_at"}),
		}).Create(&account).Error; err != nil {
			return fmt.Errorf("failed to seed account %s: %w", a.Email, err)
		}
	}
	return nil
}
