//go:build !no_automation

package automation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scripts")
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestManagerListEmpty(t *testing.T) {
	m := newTestManager(t)
	scripts, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 0 {
		t.Errorf("list count = %d, want 0", len(scripts))
	}
}

func TestManagerSaveAndGet(t *testing.T) {
	m := newTestManager(t)

	s := &Script{
		Meta: ScriptMeta{
			Name:        "Test Script",
			Description: "A test",
			Enabled:     true,
		},
		LuaCode: `ac.log("hello")`,
	}

	saved, err := m.Save(s)
	if err != nil {
		t.Fatal(err)
	}

	if saved.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if saved.ID != "test_script" {
		t.Errorf("id = %q, want test_script", saved.ID)
	}

	got, err := m.Get(saved.ID)
	if err != nil {
		t.Fatal(err)
	}

	if got.Meta.Name != "Test Script" {
		t.Errorf("name = %q, want Test Script", got.Meta.Name)
	}
	if got.Meta.Description != "A test" {
		t.Errorf("description = %q, want A test", got.Meta.Description)
	}
	if !got.Meta.Enabled {
		t.Error("enabled = false, want true")
	}
	if !strings.Contains(got.LuaCode, `ac.log("hello")`) {
		t.Errorf("lua_code = %q, want to contain ac.log", got.LuaCode)
	}
}

func TestManagerSaveExistingID(t *testing.T) {
	m := newTestManager(t)

	s := &Script{
		ID: "my_script",
		Meta: ScriptMeta{
			Name:    "My Script",
			Enabled: true,
		},
		LuaCode: `ac.log("v1")`,
	}

	saved, err := m.Save(s)
	if err != nil {
		t.Fatal(err)
	}
	if saved.ID != "my_script" {
		t.Errorf("id = %q, want my_script", saved.ID)
	}

	// Update same script
	saved.LuaCode = `ac.log("v2")`
	_, err = m.Save(saved)
	if err != nil {
		t.Fatal(err)
	}

	got, err := m.Get("my_script")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got.LuaCode, `ac.log("v2")`) {
		t.Errorf("lua_code after update = %q", got.LuaCode)
	}
}

func TestManagerList(t *testing.T) {
	m := newTestManager(t)

	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		_, err := m.Save(&Script{
			Meta:    ScriptMeta{Name: name, Enabled: true},
			LuaCode: `ac.log("` + name + `")`,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	scripts, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 3 {
		t.Fatalf("list count = %d, want 3", len(scripts))
	}
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t)

	saved, err := m.Save(&Script{
		Meta:    ScriptMeta{Name: "ToDelete", Enabled: true},
		LuaCode: `ac.log("bye")`,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Delete(saved.ID); err != nil {
		t.Fatal(err)
	}

	_, err = m.Get(saved.ID)
	if err == nil {
		t.Error("expected error after delete, got nil")
	}
}

func TestManagerGetNotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Get("nonexistent")
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestManagerGetInvalidID(t *testing.T) {
	m := newTestManager(t)

	for _, id := range []string{"", "..", "a/b", `a\b`, "../escape"} {
		if _, err := m.Get(id); err == nil {
			t.Errorf("Get(%q): expected error, got nil", id)
		}
	}
}

func TestManagerUniqueID(t *testing.T) {
	m := newTestManager(t)

	s1, err := m.Save(&Script{
		Meta:    ScriptMeta{Name: "Dup", Enabled: true},
		LuaCode: `ac.log("1")`,
	})
	if err != nil {
		t.Fatal(err)
	}

	s2, err := m.Save(&Script{
		Meta:    ScriptMeta{Name: "Dup", Enabled: true},
		LuaCode: `ac.log("2")`,
	})
	if err != nil {
		t.Fatal(err)
	}

	if s1.ID == s2.ID {
		t.Errorf("expected unique IDs, got %q for both", s1.ID)
	}
}

func TestParseScriptFile(t *testing.T) {
	dir := t.TempDir()
	content := `-- {"name":"Night Cooling","description":"Cool the bedroom at night","enabled":true}

ac.on("state_change", {unit="bedroom"}, function(event)
    ac.set_temperature("bedroom", 22)
end)
`
	path := filepath.Join(dir, "night_cooling.lua")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m := &Manager{dir: dir}
	s, err := m.parseFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if s.ID != "night_cooling" {
		t.Errorf("id = %q, want night_cooling", s.ID)
	}
	if s.Meta.Name != "Night Cooling" {
		t.Errorf("name = %q, want Night Cooling", s.Meta.Name)
	}
	if s.Meta.Description != "Cool the bedroom at night" {
		t.Errorf("description = %q", s.Meta.Description)
	}
	if !s.Meta.Enabled {
		t.Error("enabled = false, want true")
	}
	if !strings.Contains(s.LuaCode, `ac.on("state_change"`) {
		t.Errorf("lua_code missing expected content: %q", s.LuaCode)
	}
	if !strings.Contains(s.LuaCode, `ac.set_temperature("bedroom", 22)`) {
		t.Errorf("lua_code missing set_temperature: %q", s.LuaCode)
	}
}

func TestSerializeScript(t *testing.T) {
	s := &Script{
		ID: "test",
		Meta: ScriptMeta{
			Name:        "Test",
			Description: "desc",
			Enabled:     true,
		},
		LuaCode: `ac.log("hi")`,
	}

	content := serializeScript(s)

	if !strings.HasPrefix(content, "-- {") {
		t.Errorf("expected metadata line prefix, got: %q", content[:20])
	}
	if !strings.Contains(content, `ac.log("hi")`) {
		t.Error("missing lua code")
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	m := &Manager{dir: t.TempDir()}

	s := &Script{
		ID:      "roundtrip",
		Meta:    ScriptMeta{Name: "Round Trip", Enabled: true},
		LuaCode: `ac.turn_off("living_room")`,
	}

	path := filepath.Join(m.dir, s.ID+".lua")
	if err := os.WriteFile(path, []byte(serializeScript(s)), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := m.parseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Meta.Name != s.Meta.Name {
		t.Errorf("name = %q, want %q", got.Meta.Name, s.Meta.Name)
	}
	if strings.TrimSpace(got.LuaCode) != s.LuaCode {
		t.Errorf("lua_code = %q, want %q", got.LuaCode, s.LuaCode)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Bathroom AC", "bathroom_ac"},
		{"hello world!", "hello_world"},
		{"", ""},
		{"  spaces  ", "spaces"},
		{"UPPER", "upper"},
	}
	for _, tt := range tests {
		got := slugify(tt.input)
		if got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
