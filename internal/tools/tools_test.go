package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRunner records invocations and plays back canned results.
type fakeRunner struct {
	output []byte
	err    error
	onRun  func(dir string, env []string, name string, args []string)

	dir  string
	env  []string
	name string
	args []string
}

func (f *fakeRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	f.dir, f.env, f.name, f.args = dir, env, name, args
	if f.onRun != nil {
		f.onRun(dir, env, name, args)
	}
	return f.output, f.err
}

func TestCleanerInvocation(t *testing.T) {
	runner := &fakeRunner{output: []byte("CLEANED\n")}
	cleaner := NewCleaner(CleanerConfig{Runner: runner, WorkDir: "/opt/zhirpy"})

	out := filepath.Join(t.TempDir(), "done", "0.jpg")
	res, err := cleaner.Clean(context.Background(), "/tmp/in/0.jpg", out)
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !res.Cleaned {
		t.Error("Cleaned = false, want true")
	}
	if runner.name != "python3" {
		t.Errorf("interpreter = %q, want python3", runner.name)
	}
	want := []string{filepath.Join("/opt/zhirpy", "src", "clean.py"), "/tmp/in/0.jpg", out}
	if len(runner.args) != 3 || runner.args[0] != want[0] || runner.args[1] != want[1] || runner.args[2] != want[2] {
		t.Errorf("args = %v, want %v", runner.args, want)
	}
	if runner.dir != "/opt/zhirpy" {
		t.Errorf("working dir = %q, want /opt/zhirpy", runner.dir)
	}
}

func TestCleanerFailureKeepsOutput(t *testing.T) {
	runner := &fakeRunner{output: []byte("Traceback: boom"), err: errors.New("exit status 1")}
	cleaner := NewCleaner(CleanerConfig{Runner: runner})

	res, err := cleaner.Clean(context.Background(), "in.jpg", filepath.Join(t.TempDir(), "out.jpg"))
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Output != "Traceback: boom" {
		t.Errorf("Output = %q, want diagnostics preserved", res.Output)
	}
	if res.Cleaned {
		t.Error("Cleaned = true on failure")
	}
}

func TestTesseractInvocation(t *testing.T) {
	runner := &fakeRunner{}
	runner.onRun = func(dir string, env []string, name string, args []string) {
		// args: -l <langs> <image> <base> txt hocr pdf
		base := args[3]
		for suffix, data := range map[string]string{
			".txt":  "hello world",
			".hocr": "<html></html>",
			".pdf":  "%PDF-1.5",
		} {
			if err := os.WriteFile(base+suffix, []byte(data), 0o644); err != nil {
				panic(err)
			}
		}
	}
	tess := NewTesseract(TesseractConfig{Runner: runner, ModelsDir: "/models"})

	res, err := tess.Recognize(context.Background(), "page.jpg", []string{"ckb", "eng"})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.Text != "hello world" || res.Hocr != "<html></html>" || string(res.PDF) != "%PDF-1.5" {
		t.Errorf("unexpected outputs: %+v", res)
	}
	if runner.args[0] != "-l" || runner.args[1] != "ckb+eng" {
		t.Errorf("language args = %v, want -l ckb+eng", runner.args[:2])
	}
	found := false
	for _, e := range runner.env {
		if e == "TESSDATA_PREFIX=/models" {
			found = true
		}
	}
	if !found {
		t.Errorf("env = %v, missing TESSDATA_PREFIX", runner.env)
	}
}

func TestTesseractDefaultsToCkb(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1"), output: []byte("no langs")}
	tess := NewTesseract(TesseractConfig{Runner: runner})

	res, err := tess.Recognize(context.Background(), "page.jpg", nil)
	if err == nil {
		t.Fatal("expected error from failed run")
	}
	if runner.args[1] != "ckb" {
		t.Errorf("language args = %v, want ckb fallback", runner.args[:2])
	}
	if res.Diagnostics != "no langs" {
		t.Errorf("Diagnostics = %q, want tool output", res.Diagnostics)
	}
}

func TestExecRunnerCombinedOutput(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	out, err := ExecRunner{}.Run(context.Background(), "", nil, "/bin/sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(string(out), "out") || !strings.Contains(string(out), "err") {
		t.Errorf("combined output = %q, want both streams", out)
	}
}
