package auth

import (
	"strings"

	"github.com/oggyb/tindecisos/internal/config"
)

// Policy decides which signed-in accounts may use the app and which of
// them may edit the public lists. Emails compare case-insensitively.
type Policy struct {
	allowed map[string]struct{}
	admins  map[string]struct{}
}

func NewPolicy(allowed, admins []string) Policy {
	return Policy{allowed: set(allowed), admins: set(admins)}
}

func PolicyFromConfig(cfg *config.Config) Policy {
	return NewPolicy(cfg.Auth.AllowedEmails, cfg.Auth.AdminEmails)
}

// Allows reports whether email may sign in: it must be on the allow-list or
// the admin list. An empty allow-list admits admins only.
func (p Policy) Allows(email string) bool {
	email = normalize(email)
	_, ok := p.allowed[email]
	if !ok {
		_, ok = p.admins[email]
	}
	return ok
}

// Open reports whether anyone besides the admins may sign in.
func (p Policy) Open() bool { return len(p.allowed) > 0 }

func (p Policy) IsAdmin(email string) bool {
	_, ok := p.admins[normalize(email)]
	return ok
}

func set(emails []string) map[string]struct{} {
	out := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = normalize(e); e != "" {
			out[e] = struct{}{}
		}
	}
	return out
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
