package budget

import (
	"slices"

	"github.com/BTreeMap/WorkLog/internal/models"
)

// Policy maps each role to the categories that do not count toward the daily
// cap for users holding that role. The operator row applies only to users
// with no other role that has a row; several such roles get the union.
type Policy struct {
	exclusions map[models.Role][]models.Category
}

// NewPolicy builds a Policy from an explicit role table.
func NewPolicy(table map[models.Role][]models.Category) Policy {
	p := Policy{exclusions: make(map[models.Role][]models.Category, len(table))}
	for role, cats := range table {
		p.exclusions[role] = append([]models.Category(nil), cats...)
	}
	return p
}

// DefaultPolicy excludes administrative work for operators and admins, and IT
// work for the IT role. Foremen have an explicit empty row, so every category
// counts for them.
func DefaultPolicy() Policy {
	return NewPolicy(map[models.Role][]models.Category{
		models.RoleOperator: {models.CategoryAdministrative},
		models.RoleAdmin:    {models.CategoryAdministrative},
		models.RoleForeman:  {},
		models.RoleIT:       {models.CategoryIT},
	})
}

// rowsFor returns the roles whose rows apply to a user holding roles.
func (p Policy) rowsFor(roles models.Roles) models.Roles {
	var specific models.Roles
	for _, r := range roles {
		if r == models.RoleOperator {
			continue
		}
		if _, ok := p.exclusions[r]; ok {
			specific = append(specific, r)
		}
	}
	if len(specific) > 0 {
		return specific
	}
	return models.Roles{models.RoleOperator}
}

// Excluded returns the sorted excluded categories for a user holding roles.
func (p Policy) Excluded(roles models.Roles) []models.Category {
	var out []models.Category
	for _, r := range p.rowsFor(roles) {
		for _, c := range p.exclusions[r] {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	slices.Sort(out)
	return out
}

// Exempt reports whether a record of category cat bypasses the budget check
// for a user holding roles.
func (p Policy) Exempt(roles models.Roles, cat models.Category) bool {
	return slices.Contains(p.Excluded(roles), cat)
}
