package model

import "time"

// Operator is a comparison used by a saved filter's custom field clause.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
)

// Valid reports whether o is one of the supported operators.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpContains, OpStartsWith, OpEndsWith,
		OpGreaterThan, OpLessThan, OpIn, OpNotIn:
		return true
	}
	return false
}

// DateRange is an inclusive range on one date field. A nil bound leaves that
// side open. An empty Field matches any of the well-known date fields.
type DateRange struct {
	Field     string     `json:"field,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// StatusFilter restricts Field to a set of allowed values.
type StatusFilter struct {
	Field  string `json:"field,omitempty"`
	Values []any  `json:"values,omitempty"`
}

// CustomField is one field/operator/value clause.
type CustomField struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// FilterSpec is the structured body of a saved filter. Every part is optional.
type FilterSpec struct {
	DateRange    *DateRange    `json:"dateRange,omitempty"`
	Status       *StatusFilter `json:"status,omitempty"`
	CustomFields []CustomField `json:"customFields,omitempty"`
}

// SavedFilter is a named, owner-scoped and collection-scoped filter.
// At most one SavedFilter is active per (UserID, Collection).
type SavedFilter struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	UserID      string     `gorm:"not null;index:idx_saved_filters_scope,priority:1" json:"userId"`
	Collection  string     `gorm:"not null;index:idx_saved_filters_scope,priority:2" json:"collection"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `json:"description"`
	Filters     FilterSpec `gorm:"serializer:json;type:text" json:"filters"`
	IsActive    bool       `gorm:"not null;default:false" json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TableName pins the table name used by the filter store.
func (SavedFilter) TableName() string {
	return "saved_filters"
}

// FilterPatch carries the user-editable fields of a saved filter. Nil means
// unchanged. Owner and activation are never patchable.
type FilterPatch struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Collection  *string     `json:"collection,omitempty"`
	Filters     *FilterSpec `json:"filters,omitempty"`
}
