package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// File represents the on-disk task file structure.
type File struct {
	SchemaVersion int      `json:"schema_version"`
	Project       *Project `json:"project,omitempty"`
	Tasks         []Task   `json:"tasks"`
}

// Project represents project metadata.
type Project struct {
	Name string `json:"name,omitempty"`
	Root string `json:"root,omitempty"`
}

// ValidationError represents a validation error with context.
type ValidationError struct {
	Path string // JSON path to the error location
	Err  error  // Underlying error
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationResult contains validation results.
type ValidationResult struct {
	Valid      bool
	Errors     []error
	Warnings   []string
	UsedSchema bool // true if JSON Schema validation was performed
}

// Load reads and parses a task file from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}

	return &f, nil
}

// Save writes the task file to path with 2-space indentation.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task file: %w", err)
	}

	// Add trailing newline
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}

	return nil
}

// Get returns a task by ID, or nil if not found.
func (f *File) Get(id string) *Task {
	for i := range f.Tasks {
		if f.Tasks[i].ID == id {
			return &f.Tasks[i]
		}
	}
	return nil
}

// Update applies a partial update to the task with the given ID.
func (f *File) Update(id string, fields Fields) error {
	for i := range f.Tasks {
		if f.Tasks[i].ID == id {
			fields.Apply(&f.Tasks[i])
			return nil
		}
	}
	return fmt.Errorf("task %q not found", id)
}

// Validate validates the task file. If schemaPath names an existing JSON
// Schema file it is used; otherwise minimal structural checks run.
func (f *File) Validate(schemaPath string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if schemaPath != "" {
		if f.validateWithSchema(result, schemaPath); result.UsedSchema {
			return result
		}
		result.Warnings = append(result.Warnings, "JSON Schema validation not available, using minimal checks")
	}

	f.validateMinimal(result)
	return result
}

// validateMinimal performs minimal validation without JSON Schema.
func (f *File) validateMinimal(result *ValidationResult) {
	if f.SchemaVersion != 1 {
		result.Valid = false
		result.Errors = append(result.Errors, &ValidationError{
			Path: "schema_version",
			Err:  fmt.Errorf("expected 1, got %d", f.SchemaVersion),
		})
	}

	if f.Tasks == nil {
		result.Valid = false
		result.Errors = append(result.Errors, &ValidationError{
			Path: "tasks",
			Err:  fmt.Errorf("missing required field"),
		})
		return
	}

	seen := make(map[string]bool, len(f.Tasks))
	for i := range f.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		if err := validateTask(&f.Tasks[i], path); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, err)
			continue
		}
		if seen[f.Tasks[i].ID] {
			result.Valid = false
			result.Errors = append(result.Errors, &ValidationError{
				Path: path + ".id",
				Err:  fmt.Errorf("duplicate task id %q", f.Tasks[i].ID),
			})
		}
		seen[f.Tasks[i].ID] = true
	}
}

// validateTask performs minimal per-task validation.
func validateTask(t *Task, path string) *ValidationError {
	if t.ID == "" {
		return &ValidationError{Path: path + ".id", Err: fmt.Errorf("missing required field")}
	}
	if t.Title == "" {
		return &ValidationError{Path: path + ".title", Err: fmt.Errorf("missing required field")}
	}
	if t.Priority < 1 || t.Priority > 5 {
		return &ValidationError{
			Path: path + ".priority",
			Err:  fmt.Errorf("must be between 1 and 5, got %d", t.Priority),
		}
	}
	if t.Progress < 0 || t.Progress > 100 {
		return &ValidationError{
			Path: path + ".progress",
			Err:  fmt.Errorf("must be between 0 and 100, got %d", t.Progress),
		}
	}
	if !ValidStatus(t.Status) {
		return &ValidationError{
			Path: path + ".status",
			Err:  fmt.Errorf("invalid status %q, must be one of: planned, active, blocked, done", t.Status),
		}
	}
	if t.StartDate != nil && t.DueDate != nil && !t.StartDate.IsZero() && !t.DueDate.IsZero() {
		if t.DueDate.Before(t.StartDate.Time) {
			return &ValidationError{
				Path: path + ".due_date",
				Err:  fmt.Errorf("due date %s is before start date %s", t.DueDate, t.StartDate),
			}
		}
	}
	return nil
}

// validateWithSchema attempts JSON Schema validation, setting UsedSchema only
// when the schema file could actually be compiled.
func (f *File) validateWithSchema(result *ValidationResult, schemaPath string) {
	absPath, err := filepath.Abs(schemaPath)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("invalid schema path: %v", err))
		return
	}
	if _, err := os.Stat(absPath); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("schema file not usable: %v", err))
		return
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(absPath)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("invalid schema file: %v", err))
		return
	}

	result.UsedSchema = true

	// Round-trip through JSON so the schema sees the wire form.
	data, err := json.Marshal(f)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Errorf("marshal for validation: %w", err))
		return
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Errorf("unmarshal for validation: %w", err))
		return
	}

	if err := schema.Validate(doc); err != nil {
		result.Valid = false
		collectSchemaErrors(result, err)
	}
}

func collectSchemaErrors(result *ValidationResult, err error) {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		result.Errors = append(result.Errors, err)
		return
	}
	if len(ve.Causes) == 0 {
		result.Errors = append(result.Errors, &ValidationError{
			Path: ve.InstanceLocation,
			Err:  fmt.Errorf("%s", ve.Message),
		})
		return
	}
	for _, cause := range ve.Causes {
		collectSchemaErrors(result, cause)
	}
}
