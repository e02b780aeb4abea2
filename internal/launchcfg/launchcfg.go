// Package launchcfg decodes the launch/attach request arguments bodies
// into the values the debugger needs to start or observe a VM: the
// program to run, package.path/package.cpath overrides, the working
// directory, and stopOnEntry.
package launchcfg

import (
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
)

// LaunchArgs is the decoded body of a launch request.
type LaunchArgs struct {
	Program      string
	PackagePath  string // package.path override; empty means leave default
	PackageCPath string // package.cpath override; empty means leave default
	Cwd          string // working directory override; empty means unchanged
	StopOnEntry  bool
}

// AttachArgs is the decoded body of an attach request.
type AttachArgs struct {
	Program     string // not run, but required as a sanity field (matches launch)
	Cwd         string
	StopOnEntry bool
}

// DecodeLaunch parses a launch request's arguments JSON. Every field is
// read independently with gjson; an optional field of the wrong JSON type
// is treated as absent. This matches the original implementation's per-field HasMember guards —
// each field is genuinely optional and absence of one must never block
// reading another.
//
// Note: the original C++ implementation's launch handler checked
// HasMember("path") but then read args["cpath"] when deciding whether to
// apply a package.path override — a copy-paste bug that silently made
// the path override depend on cpath's presence. This implementation reads
// "path" and "cpath" independently, per spec.md §9's resolution of that
// Open Question.
func DecodeLaunch(argsJSON []byte) (LaunchArgs, error) {
	root := gjson.ParseBytes(argsJSON)

	program := root.Get("program")
	if !program.Exists() || program.Type != gjson.String || program.String() == "" {
		return LaunchArgs{}, fmt.Errorf("launch requires a non-empty string \"program\"")
	}

	args := LaunchArgs{
		Program:     program.String(),
		StopOnEntry: true,
	}
	if v := root.Get("stopOnEntry"); v.Exists() && isBool(v) {
		args.StopOnEntry = v.Bool()
	}
	if v := root.Get("path"); v.Exists() && v.Type == gjson.String {
		args.PackagePath = v.String()
	}
	if v := root.Get("cpath"); v.Exists() && v.Type == gjson.String {
		args.PackageCPath = v.String()
	}
	if v := root.Get("cwd"); v.Exists() && v.Type == gjson.String {
		args.Cwd = v.String()
	}
	return args, nil
}

func isBool(v gjson.Result) bool {
	return v.Type == gjson.True || v.Type == gjson.False
}

// DecodeAttach parses an attach request's arguments JSON. attach never
// executes a program, but the original implementation still requires the
// "program" field as a sanity check (request_attach in dbg_request.cpp
// rejects a missing/non-string "program" the same way request_launch
// does) — this mirrors that check rather than relaxing it just because
// attach has no file to load.
func DecodeAttach(argsJSON []byte) (AttachArgs, error) {
	root := gjson.ParseBytes(argsJSON)

	program := root.Get("program")
	if !program.Exists() || program.Type != gjson.String || program.String() == "" {
		return AttachArgs{}, fmt.Errorf("attach requires a non-empty string \"program\"")
	}

	args := AttachArgs{Program: program.String(), StopOnEntry: true}
	if v := root.Get("stopOnEntry"); v.Exists() && isBool(v) {
		args.StopOnEntry = v.Bool()
	}
	if v := root.Get("cwd"); v.Exists() && v.Type == gjson.String {
		args.Cwd = v.String()
	}
	return args, nil
}

// WorkingDirectory holds the session's current working directory,
// settable from a launch/attach request's cwd. PathConvert does not read
// it; it keeps its own copy, set alongside this one. Guarded by a RWMutex
// so Get and Set may be called from different goroutines.
type WorkingDirectory struct {
	mu  sync.RWMutex
	dir string
}

// Get returns the current working directory.
func (w *WorkingDirectory) Get() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dir
}

// Set updates the working directory.
func (w *WorkingDirectory) Set(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dir = dir
}
