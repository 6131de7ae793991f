package formstage

import (
	"time"
)

// FieldType is the kind of input a FormField renders.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldFile     FieldType = "file"
	FieldSelect   FieldType = "select"
	FieldTextarea FieldType = "textarea"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
	FieldLabel    FieldType = "label"
	FieldButton   FieldType = "button"
)

// FieldTypes lists every supported field type in presentation order.
var FieldTypes = []FieldType{
	FieldText, FieldEmail, FieldNumber, FieldDate, FieldFile, FieldSelect,
	FieldTextarea, FieldCheckbox, FieldRadio, FieldLabel, FieldButton,
}

// Valid reports whether t is one of FieldTypes.
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// HasOptions reports whether fields of this type carry a list of choices.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldRadio
}

// IsInput reports whether fields of this type collect a value. Labels and buttons don't,
// so their required flag is meaningless.
func (t FieldType) IsInput() bool {
	return t != FieldLabel && t != FieldButton
}

// Validation holds optional bounds applied to a field's value.
type Validation struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty" validate:"omitempty,regexp"`
}

// FormField is one input element in a stage's form.
type FormField struct {
	ID          string      `json:"id" validate:"required"`
	Type        FieldType   `json:"type" validate:"required,fieldtype"`
	Label       string      `json:"label"`
	Placeholder string      `json:"placeholder,omitempty"`
	Required    bool        `json:"required"`
	Options     []string    `json:"options,omitempty" validate:"omitempty,dive,required"`
	Validation  *Validation `json:"validation,omitempty"`
}

// Clone returns a deep copy of the field.
func (f FormField) Clone() FormField {
	out := f
	if f.Options != nil {
		out.Options = append([]string{}, f.Options...)
	}
	if f.Validation != nil {
		v := *f.Validation
		if f.Validation.Min != nil {
			lo := *f.Validation.Min
			v.Min = &lo
		}
		if f.Validation.Max != nil {
			hi := *f.Validation.Max
			v.Max = &hi
		}
		out.Validation = &v
	}
	return out
}

// CloneFields deep-copies a field list. A nil list stays nil.
func CloneFields(fields []FormField) []FormField {
	if fields == nil {
		return nil
	}
	out := make([]FormField, len(fields))
	for i, f := range fields {
		out[i] = f.Clone()
	}
	return out
}

// Stage is one step in a category's workflow.
type Stage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Order is 1-based and contiguous within the owning category.
	Order int `json:"order"`
	// Fields is the currently effective form schema.
	Fields []FormField `json:"formFields,omitempty"`
}

// Clone returns a deep copy of the stage.
func (s Stage) Clone() Stage {
	out := s
	out.Fields = CloneFields(s.Fields)
	return out
}

// ProjectCategory is a named class of work that owns an ordered list of stages.
type ProjectCategory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Stages      []Stage   `json:"stages"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the category.
func (c ProjectCategory) Clone() ProjectCategory {
	out := c
	if c.Stages != nil {
		out.Stages = make([]Stage, len(c.Stages))
		for i, s := range c.Stages {
			out.Stages[i] = s.Clone()
		}
	}
	return out
}

// FormVersion is an immutable snapshot of a stage's fields at publish time.
// Only IsActive changes after creation.
type FormVersion struct {
	ID          string      `json:"id"`
	Version     int         `json:"version"`
	StageID     string      `json:"stageId"`
	StageName   string      `json:"stageName"`
	Fields      []FormField `json:"formFields"`
	PublishedAt time.Time   `json:"publishedAt"`
	PublishedBy string      `json:"publishedBy,omitempty"`
	IsActive    bool        `json:"isActive"`
}

// Clone returns a deep copy of the version.
func (v FormVersion) Clone() FormVersion {
	out := v
	out.Fields = CloneFields(v.Fields)
	return out
}

// Direction is the neighbor a stage swaps with in MoveStage.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Rect is the vertical extent of a rendered list item, in the same coordinate space as the
// pointer position passed to ReorderField.
type Rect struct {
	Top    float64
	Height float64
}

// Midpoint returns the vertical center of the rectangle.
func (r Rect) Midpoint() float64 {
	return r.Top + r.Height/2
}

// Storage keys of the persisted collections.
const (
	// KeyProjectTypes holds every ProjectCategory with its embedded stages.
	KeyProjectTypes = "projectTypes"

	// PrefixFormVersions prefixes the per-category version history key.
	PrefixFormVersions = "formVersions_"
)

// VersionsKey returns the storage key of a category's version history.
func VersionsKey(categoryID string) string {
	return PrefixFormVersions + categoryID
}

// ID prefixes, kept readable in stored documents.
const (
	PrefixCategoryID = "cat"
	PrefixStageID    = "stage"
	PrefixFieldID    = "field"
	PrefixVersionID  = "ver"
)
