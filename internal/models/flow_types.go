// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType identifies one data-collection flow of the conversation graph.
type FlowType string

// StepID identifies a single node of the conversation graph. The empty StepID
// is the idle state (root menu).
type StepID string

// DataKey represents a semantic field name inside a session buffer.
type DataKey string

// StepIdle is the implicit state of a session with no in-flight form.
const StepIdle StepID = ""

// Flow type constants.
const (
	FlowWork     FlowType = "work"
	FlowForeman  FlowType = "foreman"
	FlowEdit     FlowType = "edit"
	FlowAdmin    FlowType = "admin"
	FlowRegister FlowType = "register"
	FlowMore     FlowType = "more"
)

// Step identifiers of the work report flow.
const (
	StepWorkDate           StepID = "work.date"
	StepWorkCategory       StepID = "work.category"
	StepWorkMachinery      StepID = "work.machinery"
	StepWorkActivity       StepID = "work.activity"
	StepWorkActivityCustom StepID = "work.activity_custom"
	StepWorkLocationGroup  StepID = "work.location_group"
	StepWorkLocation       StepID = "work.location"
	StepWorkCrop           StepID = "work.crop"
	StepWorkHours          StepID = "work.hours"
	StepWorkTrips          StepID = "work.trips"
	StepWorkConfirm        StepID = "work.confirm"
)

// Step identifiers of the foreman report flow.
const (
	StepForemanDate     StepID = "foreman.date"
	StepForemanWorkType StepID = "foreman.work_type"
	StepForemanCrop     StepID = "foreman.crop"
	StepForemanRows     StepID = "foreman.rows"
	StepForemanField    StepID = "foreman.field"
	StepForemanWorkers  StepID = "foreman.workers"
	StepForemanBags     StepID = "foreman.bags"
	StepForemanConfirm  StepID = "foreman.confirm"
)

// Step identifiers of the edit, admin, registration and auxiliary menus.
const (
	StepEditPick     StepID = "edit.pick"
	StepEditAction   StepID = "edit.action"
	StepEditHours    StepID = "edit.hours"
	StepEditDelete   StepID = "edit.delete"
	StepAdminPanel   StepID = "admin.panel"
	StepAdminGroup   StepID = "admin.group"
	StepAdminName    StepID = "admin.name"
	StepAdminRemove  StepID = "admin.remove"
	StepRegisterName StepID = "register.name"
	StepMore         StepID = "more"
)

// Data key constants for session buffers.
const (
	KeyFlow          DataKey = "flow"
	KeyDate          DataKey = "date"
	KeyCategory      DataKey = "category"
	KeyMachinery     DataKey = "machinery"
	KeyActivity      DataKey = "activity"
	KeyLocationGroup DataKey = "location_group"
	KeyLocation      DataKey = "location"
	KeyCrop          DataKey = "crop"
	KeyHours         DataKey = "hours"
	KeyTrips         DataKey = "trips"
	KeyWorkType      DataKey = "work_type"
	KeyRows          DataKey = "rows"
	KeyField         DataKey = "field"
	KeyBags          DataKey = "bags"
	KeyWorkers       DataKey = "workers"
	KeyRecordID      DataKey = "record_id"
	KeyCatalogOp     DataKey = "catalog_op"
	KeyCatalogKind   DataKey = "catalog_kind"
	KeyCatalogGroup  DataKey = "catalog_group"
)
