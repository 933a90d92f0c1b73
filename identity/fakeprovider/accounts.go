package fakeprovider

import (
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/identity"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	ID           string
	Email        string
	PasswordHash string // Empty for accounts created through a federated login
	Provider     string
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
	LastSignInAt time.Time
}

func (a *account) user() *identity.User {
	u := &identity.User{
		ID:           a.ID,
		Email:        a.Email,
		LastSignInAt: a.LastSignInAt,
		AppMetadata:  map[string]any{"provider": a.Provider},
	}
	if a.ConfirmedAt != nil {
		t := *a.ConfirmedAt
		u.EmailConfirmedAt = &t
	}
	return u
}

// accountDirectory indexes accounts by lower-cased email
type accountDirectory struct {
	accounts map[string]*account
	lock     sync.RWMutex
}

func newAccountDirectory() *accountDirectory {
	return &accountDirectory{accounts: make(map[string]*account)}
}

func (d *accountDirectory) get(email string) (*account, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	a, ok := d.accounts[normaliseEmail(email)]
	return a, ok
}

func (d *accountDirectory) add(a *account) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	key := normaliseEmail(a.Email)
	if _, exists := d.accounts[key]; exists {
		return autherrors.ErrUserExists
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	d.accounts[key] = a
	return nil
}

// update applies fn to the account under the directory lock
func (d *accountDirectory) update(email string, fn func(*account)) (*account, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	a, ok := d.accounts[normaliseEmail(email)]
	if !ok {
		return nil, autherrors.ErrUserNotFound
	}
	fn(a)
	c := *a
	return &c, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address, e.g. "a@x.com".
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return autherrors.Wrapf(autherrors.ErrInvalidEmail, "%q", email)
	}
	return nil
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: must be at least 8 characters long", autherrors.ErrWeakPassword)
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("%w: must contain at least one uppercase letter", autherrors.ErrWeakPassword)
	}
	if !hasLower {
		return fmt.Errorf("%w: must contain at least one lowercase letter", autherrors.ErrWeakPassword)
	}
	if !hasNumber {
		return fmt.Errorf("%w: must contain at least one number", autherrors.ErrWeakPassword)
	}

	return nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
