package launchcfg

import "testing"

func TestDecodeLaunchDefaults(t *testing.T) {
	args, err := DecodeLaunch([]byte(`{"program": "main.lua"}`))
	if err != nil {
		t.Fatalf("DecodeLaunch: %v", err)
	}
	if args.Program != "main.lua" {
		t.Fatalf("expected program main.lua, got %q", args.Program)
	}
	if !args.StopOnEntry {
		t.Fatal("expected stopOnEntry to default true")
	}
	if args.PackagePath != "" || args.PackageCPath != "" || args.Cwd != "" {
		t.Fatalf("expected unset optional fields to stay empty, got %+v", args)
	}
}

func TestDecodeLaunchMissingProgram(t *testing.T) {
	if _, err := DecodeLaunch([]byte(`{}`)); err == nil {
		t.Fatal("expected error for missing program")
	}
}

func TestDecodeLaunchPathIndependentOfCpath(t *testing.T) {
	// Regression test for the original implementation's copy-paste bug:
	// it gated applying "path" on HasMember("path") && args["cpath"].IsString(),
	// so a launch body with "path" but no "cpath" silently dropped the
	// path override. Here "path" must apply on its own.
	args, err := DecodeLaunch([]byte(`{"program": "main.lua", "path": "./lua/?.lua"}`))
	if err != nil {
		t.Fatalf("DecodeLaunch: %v", err)
	}
	if args.PackagePath != "./lua/?.lua" {
		t.Fatalf("expected path override applied independently of cpath, got %+v", args)
	}
	if args.PackageCPath != "" {
		t.Fatalf("expected cpath left unset, got %q", args.PackageCPath)
	}
}

func TestDecodeLaunchAllFields(t *testing.T) {
	args, err := DecodeLaunch([]byte(`{
		"program": "main.lua",
		"stopOnEntry": false,
		"path": "./a/?.lua",
		"cpath": "./b/?.so",
		"cwd": "/tmp/proj"
	}`))
	if err != nil {
		t.Fatalf("DecodeLaunch: %v", err)
	}
	if args.StopOnEntry {
		t.Fatal("expected stopOnEntry false")
	}
	if args.PackagePath != "./a/?.lua" || args.PackageCPath != "./b/?.so" || args.Cwd != "/tmp/proj" {
		t.Fatalf("unexpected fields: %+v", args)
	}
}

func TestDecodeAttachMissingProgram(t *testing.T) {
	if _, err := DecodeAttach([]byte(`{}`)); err == nil {
		t.Fatal("expected error for missing program")
	}
}

func TestDecodeAttachDefaults(t *testing.T) {
	args, err := DecodeAttach([]byte(`{"program": "main.lua"}`))
	if err != nil {
		t.Fatalf("DecodeAttach: %v", err)
	}
	if args.Program != "main.lua" {
		t.Fatalf("expected program main.lua, got %q", args.Program)
	}
	if !args.StopOnEntry {
		t.Fatal("expected stopOnEntry to default true")
	}
}

func TestDecodeAttachExplicitFalse(t *testing.T) {
	args, err := DecodeAttach([]byte(`{"program": "main.lua", "stopOnEntry": false, "cwd": "/srv"}`))
	if err != nil {
		t.Fatalf("DecodeAttach: %v", err)
	}
	if args.StopOnEntry {
		t.Fatal("expected stopOnEntry false")
	}
	if args.Cwd != "/srv" {
		t.Fatalf("expected cwd /srv, got %q", args.Cwd)
	}
}

func TestWorkingDirectoryGetSet(t *testing.T) {
	var w WorkingDirectory
	if w.Get() != "" {
		t.Fatal("expected zero value to be empty")
	}
	w.Set("/var/app")
	if w.Get() != "/var/app" {
		t.Fatalf("expected /var/app, got %q", w.Get())
	}
}
