package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/tindecisos/internal/db"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
)

// User is a signed-in identity. UID is stable across sign-ins.
type User struct {
	UID   string
	Email string
	Admin bool
}

// Backend verifies credentials. Authenticator checks them against the
// accounts table; the remote client asks the server to.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (User, error)
}

// Authenticator checks email/password pairs against the accounts table.
type Authenticator struct {
	db     *gorm.DB
	policy Policy
	log    *slog.Logger
	now    func() time.Time
}

func NewAuthenticator(database *gorm.DB, policy Policy, log *slog.Logger) *Authenticator {
	return &Authenticator{db: database, policy: policy, log: log, now: time.Now}
}

// SignIn returns ErrAuthInvalid for unknown emails, inactive accounts and
// wrong passwords alike, and ErrAuthDenied for valid credentials outside
// the allow-list.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (User, error) {
	email = normalize(email)
	if email == "" || password == "" {
		return User{}, svcErr.ErrAuthInvalid
	}

	var account db.Account
	err := a.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		a.log.Debug("sign-in for unknown email", "email", email)
		return User{}, svcErr.ErrAuthInvalid
	}
	if err != nil {
		return User{}, fmt.Errorf("load account: %w", err)
	}
	if !account.Active {
		return User{}, svcErr.ErrAuthInvalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		a.log.Debug("sign-in with wrong password", "email", email)
		return User{}, svcErr.ErrAuthInvalid
	}
	if !a.policy.Allows(email) {
		a.log.Warn("sign-in outside allow-list", "email", email)
		return User{}, svcErr.ErrAuthDenied
	}

	now := a.now().UTC()
	if err := a.db.WithContext(ctx).Model(&account).Update("last_login_at", now).Error; err != nil {
		a.log.Warn("failed to record last login", "email", email, "err", err)
	}

	return User{UID: account.UID, Email: account.Email, Admin: a.policy.IsAdmin(email)}, nil
}
