package task

// Form field types rendered by the orchestration UI.
const (
	FieldTypeText         = "text"
	FieldTypeCheckbox     = "checkbox"
	FieldTypeAutocomplete = "autocomplete"
)

// FormField is one user-facing configuration option, rendered as a form
// element in the orchestration UI.
type FormField struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Items       []string `json:"items,omitempty"`
	Required    bool     `json:"required"`
}

// Metadata registers a task with the core system: its routing name,
// what the UI shows, and the declarative configuration form.
type Metadata struct {
	Name        string      `json:"task_name"`
	DisplayName string      `json:"display_name"`
	Description string      `json:"description"`
	TaskConfig  []FormField `json:"task_config"`
}
