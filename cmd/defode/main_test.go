package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testModel = `
[[variable]]
name = "k"

[[variable]]
name = "n"
evolve = "-k * n"

[[variable]]
name = "halflife"
compute = "log(2) / k"

[[variable]]
name = "pulse"
compute = "sin(time)"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runToString(t *testing.T, opts options) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if err := run(opts, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	return stdout.String()
}

func TestRunC(t *testing.T) {
	path := writeFile(t, t.TempDir(), "decay.toml", testModel)
	out := runToString(t, options{Input: path})
	for _, want := range []string{
		"const int num_inputs = 1;",
		`"halflife",`,
		"void compute(double* constants,",
		"void odefun(double* rate, const double* time,",
		"sin(var0)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestRunGoToFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "decay.toml", testModel)
	outPath := filepath.Join(dir, "decay.go")

	if out := runToString(t, options{Input: path, Lang: "go", Package: "decay", Output: outPath}); out != "" {
		t.Errorf("stdout = %q, want nothing", out)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	src := string(data)
	if !strings.Contains(src, "package decay") || !strings.Contains(src, "func Odefun(") {
		t.Errorf("unexpected Go output:\n%s", src)
	}
}

func TestRunModelOutputSettings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "m.toml", `
[model]
name = "growth"

[output]
lang = "go"
fingerprint = true

[[variable]]
name = "r"

[[variable]]
name = "x"
evolve = "r * x"
`)
	out := runToString(t, options{Input: path})
	for _, want := range []string{"// model growth", "// fingerprint sha256:", "package growth"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	out = runToString(t, options{Input: path, Lang: "c", Prefix: "t"})
	if !strings.Contains(out, "const double t0 = ") {
		t.Errorf("flags did not override the model file:\n%s", out)
	}
}

func TestRunSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "decay.toml", testModel)
	snapPath := filepath.Join(dir, "decay.cbor")

	fromModel := runToString(t, options{Input: path, Snapshot: snapPath})
	if _, err := os.Stat(snapPath); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	fromSnapshot := runToString(t, options{Input: snapPath})
	if fromModel != fromSnapshot {
		t.Errorf("snapshot compiles differently\n--- model ---\n%s\n--- snapshot ---\n%s", fromModel, fromSnapshot)
	}
}

func TestRunWarnings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "m.toml", testModel)
	var stdout, stderr bytes.Buffer
	if err := run(options{Input: path}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if stderr.Len() != 0 {
		t.Errorf("unexpected warnings: %s", stderr.String())
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.toml", testModel)
	bad := writeFile(t, dir, "bad.toml", "[[variable]]\nname = \"a\"\ncompute = \"a +\"\n")
	cyclic := writeFile(t, dir, "cyclic.toml", "[[variable]]\nname = \"a\"\ncompute = \"b\"\n[[variable]]\nname = \"b\"\ncompute = \"a\"\n")
	junk := writeFile(t, dir, "junk.cbor", "not cbor")

	tests := []struct {
		name string
		opts options
	}{
		{"missing file", options{Input: filepath.Join(dir, "missing.toml")}},
		{"syntax error", options{Input: bad}},
		{"cycle", options{Input: cyclic}},
		{"bad snapshot", options{Input: junk}},
		{"unknown language", options{Input: good, Lang: "rust"}},
		{"unwritable output", options{Input: good, Output: filepath.Join(dir, "no", "such", "dir.c")}},
	}
	for _, tt := range tests {
		var stdout, stderr bytes.Buffer
		if err := run(tt.opts, &stdout, &stderr); err == nil {
			t.Errorf("%s: run succeeded", tt.name)
		}
		if stdout.Len() != 0 {
			t.Errorf("%s: wrote output on failure", tt.name)
		}
	}
}
