package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/planline/planline/internal/timegrid"
)

// chdir is os.Chdir with a t.Cleanup restoring the previous directory,
// matching t.Chdir from newer Go releases.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

// isolate points HOME and the working directory at fresh temp dirs so no
// real config files leak into the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	chdir(t, t.TempDir())
	// Getwd resolves symlinked temp roots; use its answer for comparisons.
	project, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	return project
}

func load(t *testing.T, args ...string) *Config {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := Load(fs, args)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	project := isolate(t)
	cfg := load(t)

	if cfg.TasksFile != filepath.Join(project, "planline.json") {
		t.Errorf("TasksFile = %s", cfg.TasksFile)
	}
	if cfg.ViewMode != "week" || cfg.HistoryLimit != 50 || cfg.WatchDebounceMS != 200 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log defaults not applied: %+v", cfg)
	}
	if cfg.ProjectRoot != project {
		t.Errorf("ProjectRoot = %s, want %s", cfg.ProjectRoot, project)
	}
}

func TestProjectConfigFile(t *testing.T) {
	isolate(t)
	content := `
tasks_file = "work/tasks.json"
view_mode = "day"
history_limit = 10
`
	if err := os.WriteFile("planline.toml", []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := load(t)
	if filepath.Base(cfg.TasksFile) != "tasks.json" {
		t.Errorf("TasksFile = %s", cfg.TasksFile)
	}
	if cfg.ViewMode != "day" || cfg.HistoryLimit != 10 {
		t.Errorf("project file not merged: %+v", cfg)
	}
}

func TestProjectFileOverridesUserFile(t *testing.T) {
	isolate(t)

	home := os.Getenv("HOME")
	userDir := filepath.Join(home, ".planline")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(userDir, "planline.toml"), []byte(`view_mode = "month"`+"\n"+`history_limit = 20`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("planline.toml", []byte(`view_mode = "day"`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := load(t)
	if cfg.ViewMode != "day" {
		t.Errorf("project file should win: ViewMode = %s", cfg.ViewMode)
	}
	if cfg.HistoryLimit != 20 {
		t.Errorf("user file values not listed in the project file should survive: %d", cfg.HistoryLimit)
	}
}

func TestEnvOverridesFiles(t *testing.T) {
	isolate(t)
	if err := os.WriteFile("planline.toml", []byte(`view_mode = "day"`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLANLINE_VIEW", "month")
	t.Setenv("PLANLINE_HISTORY_LIMIT", "7")

	cfg := load(t)
	if cfg.ViewMode != "month" || cfg.HistoryLimit != 7 {
		t.Errorf("env should override files: %+v", cfg)
	}
}

func TestFlagsOverrideEverything(t *testing.T) {
	isolate(t)
	t.Setenv("PLANLINE_VIEW", "month")

	cfg := load(t, "-view", "day", "-history-limit", "3", "-log-level", "debug")
	if cfg.ViewMode != "day" || cfg.HistoryLimit != 3 || cfg.LogLevel != "debug" {
		t.Errorf("flags should win: %+v", cfg)
	}
}

func TestInvalidViewMode(t *testing.T) {
	isolate(t)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if _, err := Load(fs, []string{"-view", "fortnight"}); err == nil {
		t.Error("invalid view mode should fail to load")
	}
}

func TestAbsoluteTasksPathKept(t *testing.T) {
	isolate(t)
	abs := filepath.Join(t.TempDir(), "tasks.json")
	cfg := load(t, "-tasks", abs)
	if cfg.TasksFile != abs {
		t.Errorf("absolute path should pass through untouched: %s", cfg.TasksFile)
	}
}

func TestMode(t *testing.T) {
	c := &Config{ViewMode: "day"}
	if c.Mode() != timegrid.ModeDay {
		t.Errorf("Mode() = %v", c.Mode())
	}
	c.ViewMode = "bogus"
	if c.Mode() != timegrid.ModeWeek {
		t.Errorf("unparseable mode should fall back to week, got %v", c.Mode())
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandPath("~/tasks.json"); got != filepath.Join(home, "tasks.json") {
		t.Errorf("expandPath(~/tasks.json) = %s", got)
	}
	if got := expandPath(""); got != "" {
		t.Errorf("empty path should stay empty, got %q", got)
	}
}
