// Package report turns a completed form buffer into an immutable record.
package report

import (
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/session"
)

// Attributes exposes static catalog attributes that change which fields a
// flow requires.
type Attributes interface {
	CropRequiresBags(crop string) bool
	MachineryCountsTrips(machinery string) bool
}

// Schema lists the fields a flow must collect before it can be committed.
type Schema struct {
	Flow            models.FlowType
	HourDenominated bool
	required        func(buf session.Buffer, attrs Attributes) []models.DataKey
}

// Required returns the required keys for buf in display order.
func (s Schema) Required(buf session.Buffer, attrs Attributes) []models.DataKey {
	return s.required(buf, attrs)
}

var schemas = map[models.FlowType]Schema{
	models.FlowWork: {
		Flow:            models.FlowWork,
		HourDenominated: true,
		required: func(buf session.Buffer, attrs Attributes) []models.DataKey {
			keys := []models.DataKey{models.KeyDate, models.KeyCategory}
			if models.Category(buf[models.KeyCategory]) == models.CategoryMachinery {
				keys = append(keys, models.KeyMachinery)
			}
			keys = append(keys, models.KeyActivity, models.KeyLocationGroup, models.KeyLocation)
			if models.LocationGroup(buf[models.KeyLocationGroup]) == models.GroupFields {
				keys = append(keys, models.KeyCrop)
			}
			keys = append(keys, models.KeyHours)
			if m, ok := buf[models.KeyMachinery]; ok && attrs != nil && attrs.MachineryCountsTrips(m) {
				keys = append(keys, models.KeyTrips)
			}
			return keys
		},
	},
	models.FlowForeman: {
		Flow: models.FlowForeman,
		required: func(buf session.Buffer, attrs Attributes) []models.DataKey {
			keys := []models.DataKey{models.KeyDate, models.KeyWorkType, models.KeyCrop, models.KeyRows, models.KeyField, models.KeyWorkers}
			if attrs != nil && attrs.CropRequiresBags(buf[models.KeyCrop]) {
				keys = append(keys, models.KeyBags)
			}
			return keys
		},
	},
}

// SchemaFor returns the schema of a committable flow.
func SchemaFor(flow models.FlowType) (Schema, bool) {
	s, ok := schemas[flow]
	return s, ok
}
