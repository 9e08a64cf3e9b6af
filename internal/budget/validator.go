package budget

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/WorkLog/internal/models"
)

// Filter selects the committed records that count toward a daily total.
type Filter struct {
	UserID            string
	Date              string
	ExcludeCategories []models.Category
	ExcludeRecordID   string
}

// Ledger is the read side of the persistence collaborator used by the validator.
type Ledger interface {
	// CommittedHours sums hours of the records matching f.
	CommittedHours(ctx context.Context, f Filter) (int, error)
	// DayReports lists all of the user's records for date.
	DayReports(ctx context.Context, userID, date string) ([]models.WorkReport, error)
}

// Request describes a proposed new or edited hour entry.
type Request struct {
	UserID          string
	Date            string
	Roles           models.Roles
	Category        models.Category
	Hours           int
	ExcludeRecordID string
}

// Decision is the outcome of a budget check.
type Decision struct {
	OK         bool
	Exempt     bool
	Committed  int
	MaxAddable int
	// Existing holds the same-day records when the request is rejected.
	Existing []models.WorkReport
}

// ExceededError is returned by callers that turn a rejected Decision into an error.
type ExceededError struct {
	Decision Decision
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily hour budget exceeded: %d committed, at most %d more allowed",
		e.Decision.Committed, e.Decision.MaxAddable)
}

// Validator checks proposed hours against the daily cap.
type Validator struct {
	ledger Ledger
	policy Policy
}

// NewValidator creates a Validator reading committed hours from ledger.
func NewValidator(ledger Ledger, policy Policy) *Validator {
	return &Validator{ledger: ledger, policy: policy}
}

// Policy returns the exclusion policy the validator applies.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Check decides whether req fits into the user's remaining budget for the day.
// Hours outside [MinHours, MaxHours] are rejected with ErrInvalidHours before
// any lookup. Errors from the ledger are returned unchanged.
func (v *Validator) Check(ctx context.Context, req Request) (Decision, error) {
	if err := ValidateHours(req.Hours); err != nil {
		return Decision{}, err
	}
	if v.policy.Exempt(req.Roles, req.Category) {
		slog.Debug("Validator.Check: category exempt", "userID", req.UserID, "category", req.Category)
		return Decision{OK: true, Exempt: true, MaxAddable: DailyCap}, nil
	}

	committed, err := v.ledger.CommittedHours(ctx, Filter{
		UserID:            req.UserID,
		Date:              req.Date,
		ExcludeCategories: v.policy.Excluded(req.Roles),
		ExcludeRecordID:   req.ExcludeRecordID,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("committed hours lookup failed: %w", err)
	}

	d := Decision{Committed: committed, MaxAddable: max(0, DailyCap-committed)}
	if committed+req.Hours <= DailyCap {
		d.OK = true
		return d, nil
	}

	existing, err := v.ledger.DayReports(ctx, req.UserID, req.Date)
	if err != nil {
		return Decision{}, fmt.Errorf("day reports lookup failed: %w", err)
	}
	for _, r := range existing {
		if r.ID != req.ExcludeRecordID {
			d.Existing = append(d.Existing, r)
		}
	}
	slog.Info("Validator.Check: budget exceeded", "userID", req.UserID, "date", req.Date,
		"committed", committed, "proposed", req.Hours, "maxAddable", d.MaxAddable)
	return d, nil
}
