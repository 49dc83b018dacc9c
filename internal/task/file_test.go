package task

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleFile() *File {
	start := NewDate(2024, time.March, 4)
	due := NewDate(2024, time.March, 11)
	return &File{
		SchemaVersion: 1,
		Project:       &Project{Name: "demo"},
		Tasks: []Task{
			{ID: "T1", Title: "design", Status: StatusActive, Priority: 2, Progress: 30, StartDate: &start, DueDate: &due},
			{ID: "T2", Title: "review", Status: StatusPlanned, Priority: 3, Progress: 0},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planline.json")
	f := sampleFile()

	if err := f.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("saved file should end with a newline")
	}
	if !strings.Contains(string(data), `"start_date": "2024-03-04"`) {
		t.Errorf("dates should serialize as calendar days, got:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Tasks) != 2 {
		t.Fatalf("loaded %d tasks, want 2", len(loaded.Tasks))
	}
	if loaded.Tasks[0].StartDate == nil || loaded.Tasks[0].StartDate.String() != "2024-03-04" {
		t.Errorf("start date = %v, want 2024-03-04", loaded.Tasks[0].StartDate)
	}
	if loaded.Project == nil || loaded.Project.Name != "demo" {
		t.Errorf("project metadata not preserved: %+v", loaded.Project)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("loading a missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("loading malformed JSON should fail")
	}
}

func TestFileUpdate(t *testing.T) {
	f := sampleFile()
	p := 5
	if err := f.Update("T2", Fields{Priority: &p}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := f.Get("T2"); got == nil || got.Priority != 5 {
		t.Errorf("priority not applied: %+v", got)
	}
	if err := f.Update("missing", Fields{Priority: &p}); err == nil {
		t.Error("updating an unknown id should fail")
	}
}

func TestValidateMinimal(t *testing.T) {
	due := NewDate(2024, time.January, 5)
	start := NewDate(2024, time.January, 10)

	tests := []struct {
		name     string
		mutate   func(f *File)
		wantPath string
	}{
		{
			name:     "wrong schema version",
			mutate:   func(f *File) { f.SchemaVersion = 2 },
			wantPath: "schema_version",
		},
		{
			name:     "missing tasks",
			mutate:   func(f *File) { f.Tasks = nil },
			wantPath: "tasks",
		},
		{
			name:     "priority out of range",
			mutate:   func(f *File) { f.Tasks[0].Priority = 9 },
			wantPath: "tasks[0].priority",
		},
		{
			name:     "progress out of range",
			mutate:   func(f *File) { f.Tasks[1].Progress = 150 },
			wantPath: "tasks[1].progress",
		},
		{
			name:     "unknown status",
			mutate:   func(f *File) { f.Tasks[0].Status = "paused" },
			wantPath: "tasks[0].status",
		},
		{
			name:     "due before start",
			mutate:   func(f *File) { f.Tasks[0].StartDate, f.Tasks[0].DueDate = &start, &due },
			wantPath: "tasks[0].due_date",
		},
		{
			name:     "duplicate id",
			mutate:   func(f *File) { f.Tasks[1].ID = "T1" },
			wantPath: "tasks[1].id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := sampleFile()
			tt.mutate(f)
			result := f.Validate("")
			if result.Valid {
				t.Fatal("expected validation failure")
			}
			found := false
			for _, err := range result.Errors {
				if ve, ok := err.(*ValidationError); ok && ve.Path == tt.wantPath {
					found = true
				}
			}
			if !found {
				t.Errorf("no error at path %q; got %v", tt.wantPath, result.Errors)
			}
		})
	}
}

func TestValidateCleanFile(t *testing.T) {
	result := sampleFile().Validate("")
	if !result.Valid || len(result.Errors) != 0 {
		t.Errorf("clean file should validate, got errors %v", result.Errors)
	}
}

func TestValidateSchemaFallback(t *testing.T) {
	f := sampleFile()
	result := f.Validate(filepath.Join(t.TempDir(), "no-such-schema.json"))
	if result.UsedSchema {
		t.Error("missing schema file must not count as schema validation")
	}
	if len(result.Warnings) == 0 {
		t.Error("falling back to minimal checks should leave a warning")
	}
	if !result.Valid {
		t.Errorf("minimal checks should pass for a clean file: %v", result.Errors)
	}
}

func TestValidateWithSchema(t *testing.T) {
	schema := `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["schema_version", "tasks"],
  "properties": {
    "schema_version": {"const": 1},
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title", "status", "priority"],
        "properties": {
          "priority": {"type": "integer", "minimum": 1, "maximum": 5}
        }
      }
    }
  }
}`
	schemaPath := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(schemaPath, []byte(schema), 0644); err != nil {
		t.Fatal(err)
	}

	f := sampleFile()
	result := f.Validate(schemaPath)
	if !result.UsedSchema {
		t.Fatalf("schema validation should run, warnings: %v", result.Warnings)
	}
	if !result.Valid {
		t.Errorf("clean file should pass the schema: %v", result.Errors)
	}

	f.Tasks[0].Priority = 9
	result = f.Validate(schemaPath)
	if !result.UsedSchema || result.Valid {
		t.Errorf("out-of-range priority should fail schema validation: %+v", result)
	}
}
