// Package models defines the data structures shared by WorkLog components.
package models

import (
	"slices"
	"time"
)

// Role is a capability tag attached to a user id by the role directory.
type Role string

const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
	RoleForeman  Role = "foreman"
	RoleIT       Role = "it"
)

// Roles is the set of role tags of one user.
type Roles []Role

// Has reports whether r contains role.
func (r Roles) Has(role Role) bool {
	return slices.Contains(r, role)
}

// Category classifies a work report. Budget exclusions are expressed per category.
type Category string

const (
	CategoryMachinery      Category = "machinery"
	CategoryManual         Category = "manual"
	CategoryAdministrative Category = "administrative"
	CategoryIT             Category = "it"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryMachinery, CategoryManual, CategoryAdministrative, CategoryIT:
		return true
	default:
		return false
	}
}

// LocationGroup groups catalog locations.
type LocationGroup string

const (
	GroupFields    LocationGroup = "fields"
	GroupWarehouse LocationGroup = "warehouse"
	GroupOffice    LocationGroup = "office"
)

// CatalogKind names a catalog list that admins can extend.
type CatalogKind string

const (
	KindLocation CatalogKind = "location"
	KindActivity CatalogKind = "activity"
)

// DateLayout is the canonical calendar date format used in buffers and storage.
const DateLayout = "2006-01-02"

// User is a registered operator.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CatalogItem is one admin-managed entry of a candidate list.
type CatalogItem struct {
	ID        string      `json:"id"`
	Kind      CatalogKind `json:"kind"`
	Group     string      `json:"group"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
}

// WorkReport is a persisted hour-denominated work record.
type WorkReport struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	WorkDate      string        `json:"work_date"`
	Category      Category      `json:"category"`
	Machinery     string        `json:"machinery,omitempty"`
	Activity      string        `json:"activity"`
	LocationGroup LocationGroup `json:"location_group"`
	Location      string        `json:"location"`
	Crop          string        `json:"crop,omitempty"`
	Hours         int           `json:"hours"`
	Trips         int           `json:"trips,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ForemanReport is a persisted foreman row/field/bag/worker record.
type ForemanReport struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	WorkDate  string    `json:"work_date"`
	WorkType  string    `json:"work_type"`
	Crop      string    `json:"crop"`
	Field     string    `json:"field"`
	Rows      int       `json:"rows"`
	Bags      int       `json:"bags,omitempty"`
	Workers   int       `json:"workers"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportOp is the kind of change handed to the spreadsheet-sync collaborator.
type ExportOp string

const (
	ExportUpsert ExportOp = "upsert"
	ExportDelete ExportOp = "delete"
)

// ExportChange describes one record change to mirror into the export sheets.
type ExportChange struct {
	Op       ExportOp `json:"op"`
	Flow     FlowType `json:"flow"`
	RecordID string   `json:"record_id"`
	WorkDate string   `json:"work_date"`
}

// StatusType represents the delivery status of an outbound message.
type StatusType string

const (
	StatusTypeSent      StatusType = "sent"
	StatusTypeDelivered StatusType = "delivered"
	StatusTypeRead      StatusType = "read"
	StatusTypeFailed    StatusType = "failed"
)

// Receipt represents a delivery receipt emitted by a messaging service.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// Response represents an inbound turn from a user. Selection carries the id
// of a tapped button or list row when the provider reports one.
type Response struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Selection string `json:"selection,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Time      int64  `json:"time"`
}

// APIStatus is the status field of an HTTP API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the JSON envelope of every HTTP API response.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success wraps result in an ok response.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage wraps result in an ok response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
