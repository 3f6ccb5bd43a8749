package invoice

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
)

// AnonymousUser owns all invoices when no accounts are configured
var AnonymousUser = User{ID: "local"}

// User is the authenticated caller
type User struct {
	ID    string
	Email string
}

// Signer is the name recorded when the user signs a change
func (u User) Signer() string {
	if u.Email == "" {
		return "System"
	}
	return u.Email
}

// Account holds basic authentication credentials of one user
type Account struct {
	Username string
	Password string
	Email    string
}

// Accounts maps usernames to their credentials
type Accounts map[string]Account

// ParseAccounts parses a comma separated list of user:password[:email] entries
func ParseAccounts(s string) (Accounts, error) {
	accounts := Accounts{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.SplitN(entry, ":", 3)
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("invalid account %q: expected user:password[:email]", fields[0])
		}
		account := Account{Username: fields[0], Password: fields[1]}
		if len(fields) == 3 {
			account.Email = fields[2]
		}
		accounts[account.Username] = account
	}
	return accounts, nil
}

// Authenticate returns the user for valid credentials
func (a Accounts) Authenticate(username, password string) (User, bool) {
	account, ok := a[username]
	if !ok {
		return User{}, false
	}
	if subtle.ConstantTimeCompare([]byte(account.Password), []byte(password)) != 1 {
		return User{}, false
	}
	return User{ID: account.Username, Email: account.Email}, true
}

type userKey struct{}

// WithUser returns a context carrying user
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the user stored in ctx, or AnonymousUser
func UserFrom(ctx context.Context) User {
	if user, ok := ctx.Value(userKey{}).(User); ok {
		return user
	}
	return AnonymousUser
}
