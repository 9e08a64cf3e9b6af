package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/WorkLog/internal/budget"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/session"
)

// ContractError means the step graph let a flow reach commit without
// collecting what its schema requires. It is a programming error, not a user error.
type ContractError struct {
	Flow    models.FlowType
	Missing []models.DataKey
	Reason  string
}

func (e *ContractError) Error() string {
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, k := range e.Missing {
			names[i] = string(k)
		}
		return fmt.Sprintf("flow %s: missing required fields: %s", e.Flow, strings.Join(names, ", "))
	}
	return fmt.Sprintf("flow %s: %s", e.Flow, e.Reason)
}

// CommitRequest carries everything TryCommit needs.
type CommitRequest struct {
	Flow            models.FlowType
	UserID          string
	Roles           models.Roles
	Buffer          session.Buffer
	ExcludeRecordID string
}

// Assembler validates a buffer against its flow schema and freezes it.
type Assembler struct {
	validator *budget.Validator
	attrs     Attributes
}

// NewAssembler creates an Assembler. validator may be nil only when no
// hour-denominated flow is ever committed.
func NewAssembler(validator *budget.Validator, attrs Attributes) *Assembler {
	return &Assembler{validator: validator, attrs: attrs}
}

// TryCommit returns the finished record for req or an error:
// *ContractError when required fields are missing, *budget.ExceededError when
// an hour-denominated record would break the daily cap, or a wrapped
// collaborator error. It never modifies req.Buffer.
func (a *Assembler) TryCommit(ctx context.Context, req CommitRequest) (Record, error) {
	schema, ok := SchemaFor(req.Flow)
	if !ok {
		return Record{}, &ContractError{Flow: req.Flow, Reason: "flow has no commit schema"}
	}

	keys := schema.Required(req.Buffer, a.attrs)
	var missing []models.DataKey
	for _, k := range keys {
		if strings.TrimSpace(req.Buffer[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		slog.Error("Assembler.TryCommit: missing required fields", "flow", req.Flow, "userID", req.UserID, "missing", missing)
		return Record{}, &ContractError{Flow: req.Flow, Missing: missing}
	}

	if schema.HourDenominated {
		hours, err := budget.ParseHours(req.Buffer[models.KeyHours])
		if err != nil {
			return Record{}, &ContractError{Flow: req.Flow, Reason: err.Error()}
		}
		if a.validator == nil {
			return Record{}, &ContractError{Flow: req.Flow, Reason: "no budget validator configured"}
		}
		d, err := a.validator.Check(ctx, budget.Request{
			UserID:          req.UserID,
			Date:            req.Buffer[models.KeyDate],
			Roles:           req.Roles,
			Category:        models.Category(req.Buffer[models.KeyCategory]),
			Hours:           hours,
			ExcludeRecordID: req.ExcludeRecordID,
		})
		if err != nil {
			return Record{}, err
		}
		if !d.OK {
			return Record{}, &budget.ExceededError{Decision: d}
		}
	}

	fields := make(map[models.DataKey]string, len(keys))
	for _, k := range keys {
		fields[k] = req.Buffer[k]
	}
	slog.Debug("Assembler.TryCommit: record frozen", "flow", req.Flow, "userID", req.UserID, "fields", len(fields))
	return Record{flow: req.Flow, userID: req.UserID, keys: keys, fields: fields}, nil
}
