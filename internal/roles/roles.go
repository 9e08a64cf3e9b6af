// Package roles answers which role tags a user id carries.
package roles

import (
	"strings"

	"github.com/BTreeMap/WorkLog/internal/models"
)

// Directory is a static role table built from configuration. Every user is an
// operator; admin, foreman and IT tags come from explicit id lists.
type Directory struct {
	byUser map[string]models.Roles
}

// Opts holds the id lists of a Directory.
type Opts struct {
	Admins  []string
	Foremen []string
	ITStaff []string
}

// Option defines a configuration option for a Directory.
type Option func(*Opts)

// WithAdmins adds admin user ids.
func WithAdmins(ids ...string) Option {
	return func(o *Opts) { o.Admins = append(o.Admins, ids...) }
}

// WithForemen adds foreman user ids.
func WithForemen(ids ...string) Option {
	return func(o *Opts) { o.Foremen = append(o.Foremen, ids...) }
}

// WithITStaff adds IT user ids.
func WithITStaff(ids ...string) Option {
	return func(o *Opts) { o.ITStaff = append(o.ITStaff, ids...) }
}

// NewDirectory builds a Directory from options.
func NewDirectory(opts ...Option) *Directory {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Directory{byUser: make(map[string]models.Roles)}
	add := func(role models.Role, ids []string) {
		for _, id := range ids {
			id = Canonical(id)
			if id == "" || d.byUser[id].Has(role) {
				continue
			}
			d.byUser[id] = append(d.byUser[id], role)
		}
	}
	add(models.RoleAdmin, cfg.Admins)
	add(models.RoleForeman, cfg.Foremen)
	add(models.RoleIT, cfg.ITStaff)
	return d
}

// RolesOf returns the role set of userID. The operator tag is always present.
func (d *Directory) RolesOf(userID string) models.Roles {
	out := models.Roles{models.RoleOperator}
	return append(out, d.byUser[Canonical(userID)]...)
}

// Canonical strips the formatting a messaging provider may add around a user id.
func Canonical(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "whatsapp:")
	return strings.TrimPrefix(id, "+")
}
