package report

import (
	"fmt"
	"strconv"

	"github.com/BTreeMap/WorkLog/internal/models"
)

// Record is a finished, immutable form. It carries exactly the fields its
// flow's schema required at commit time.
type Record struct {
	flow   models.FlowType
	userID string
	keys   []models.DataKey
	fields map[models.DataKey]string
}

// Flow returns the flow that produced the record.
func (r Record) Flow() models.FlowType { return r.flow }

// UserID returns the id of the submitting user.
func (r Record) UserID() string { return r.userID }

// Get returns the value of key.
func (r Record) Get(key models.DataKey) (string, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Keys returns the record's keys in display order.
func (r Record) Keys() []models.DataKey {
	return append([]models.DataKey(nil), r.keys...)
}

// Fields returns a copy of all fields.
func (r Record) Fields() map[models.DataKey]string {
	out := make(map[models.DataKey]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

func (r Record) intField(key models.DataKey) (int, error) {
	v, ok := r.fields[key]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("field %s is not an integer: %w", key, err)
	}
	return n, nil
}

// WorkReport converts a work-flow record into its persisted form.
func (r Record) WorkReport() (models.WorkReport, error) {
	if r.flow != models.FlowWork {
		return models.WorkReport{}, fmt.Errorf("record of flow %s is not a work report", r.flow)
	}
	hours, err := r.intField(models.KeyHours)
	if err != nil {
		return models.WorkReport{}, err
	}
	trips, err := r.intField(models.KeyTrips)
	if err != nil {
		return models.WorkReport{}, err
	}
	return models.WorkReport{
		UserID:        r.userID,
		WorkDate:      r.fields[models.KeyDate],
		Category:      models.Category(r.fields[models.KeyCategory]),
		Machinery:     r.fields[models.KeyMachinery],
		Activity:      r.fields[models.KeyActivity],
		LocationGroup: models.LocationGroup(r.fields[models.KeyLocationGroup]),
		Location:      r.fields[models.KeyLocation],
		Crop:          r.fields[models.KeyCrop],
		Hours:         hours,
		Trips:         trips,
	}, nil
}

// ForemanReport converts a foreman-flow record into its persisted form.
func (r Record) ForemanReport() (models.ForemanReport, error) {
	if r.flow != models.FlowForeman {
		return models.ForemanReport{}, fmt.Errorf("record of flow %s is not a foreman report", r.flow)
	}
	var ints [3]int
	for i, k := range []models.DataKey{models.KeyRows, models.KeyWorkers, models.KeyBags} {
		n, err := r.intField(k)
		if err != nil {
			return models.ForemanReport{}, err
		}
		ints[i] = n
	}
	return models.ForemanReport{
		UserID:   r.userID,
		WorkDate: r.fields[models.KeyDate],
		WorkType: r.fields[models.KeyWorkType],
		Crop:     r.fields[models.KeyCrop],
		Field:    r.fields[models.KeyField],
		Rows:     ints[0],
		Workers:  ints[1],
		Bags:     ints[2],
	}, nil
}
