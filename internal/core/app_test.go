package core

import (
	"context"
	"errors"
	"testing"
)

// lifecycleModule records Start/Stop/Reload calls into a shared log.
type lifecycleModule struct {
	id       ModuleID
	log      *[]string
	startErr error
}

func (m *lifecycleModule) ModuleInfo() ModuleInfo {
	id, log, startErr := m.id, m.log, m.startErr
	return ModuleInfo{
		ID:  id,
		New: func() Module { return &lifecycleModule{id: id, log: log, startErr: startErr} },
	}
}

func (m *lifecycleModule) Start() error {
	*m.log = append(*m.log, "start:"+string(m.id))
	return m.startErr
}

func (m *lifecycleModule) Stop(_ context.Context) error {
	*m.log = append(*m.log, "stop:"+string(m.id))
	return nil
}

func (m *lifecycleModule) Reload(_ *AppContext) error {
	*m.log = append(*m.log, "reload:"+string(m.id))
	return nil
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Cleanup(resetRegistry)

	var log []string
	RegisterModule(&lifecycleModule{id: "a.one", log: &log})
	RegisterModule(&lifecycleModule{id: "b.two", log: &log})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"a.one", "b.two"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start:a.one", "start:b.two", "stop:b.two", "stop:a.one"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	t.Cleanup(resetRegistry)

	var log []string
	RegisterModule(&lifecycleModule{id: "a.ok", log: &log})
	RegisterModule(&lifecycleModule{id: "b.fail", log: &log, startErr: errors.New("boom")})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"a.ok", "b.fail"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start:a.ok", "start:b.fail", "stop:a.ok"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestApp_ReloadModules(t *testing.T) {
	t.Cleanup(resetRegistry)

	var log []string
	RegisterModule(&lifecycleModule{id: "a.reload", log: &log})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"a.reload"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if err := app.ReloadModules(app.Context()); err != nil {
		t.Fatalf("ReloadModules: %v", err)
	}
	if len(log) != 1 || log[0] != "reload:a.reload" {
		t.Errorf("log = %v, want [reload:a.reload]", log)
	}
	if ids := app.Modules(); len(ids) != 1 || ids[0] != "a.reload" {
		t.Errorf("Modules() = %v", ids)
	}
}

func TestModuleID_Namespace(t *testing.T) {
	tests := map[ModuleID]string{
		"provider.groq": "provider",
		"gateway.http":  "gateway",
		"standalone":    "standalone",
		"a.b.c":         "a",
	}
	for id, want := range tests {
		if got := id.Namespace(); got != want {
			t.Errorf("%q.Namespace() = %q, want %q", id, got, want)
		}
	}
}

func TestModuleID_Name(t *testing.T) {
	tests := map[ModuleID]string{
		"provider.groq":  "groq",
		"credits.sqlite": "sqlite",
		"standalone":     "standalone",
		"a.b.c":          "b.c",
	}
	for id, want := range tests {
		if got := id.Name(); got != want {
			t.Errorf("%q.Name() = %q, want %q", id, got, want)
		}
	}
}
