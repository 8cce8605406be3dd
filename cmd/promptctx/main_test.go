package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the root command against an isolated home directory.
func run(t *testing.T, homePath string, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", homePath)
	outputFormat, metricsOut = "yaml", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--home", filepath.Join(homePath, ".promptctx")}, args...))

	err := rootCmd.Execute()
	if cerr := shutdown(); cerr != nil {
		t.Fatalf("shutdown() error = %v", cerr)
	}
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLI_PromptLifecycle(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "summarize.md", "Summarize the following.\n")
	asset := writeFile(t, dir, "guide.md", "Be brief.\n")
	def := writeFile(t, dir, "summary.json", `{"summary": {"description": "One paragraph", "required": true, "type": "string"}}`)
	desired := writeFile(t, dir, "desired.yaml", "assets:\n  - id: "+asset+"\n    type: reference\n")

	if _, err := run(t, dir, "", "prompts", "import", doc); err != nil {
		t.Fatalf("import: %v", err)
	}
	out, err := run(t, dir, "", "-o", "json", "prompts", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, `"name": "summarize"`) {
		t.Errorf("list output missing prompt: %s", out)
	}

	if _, err := run(t, dir, "", "relationships", "sync", "summarize", desired); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := run(t, dir, "", "templates", "create", "summary", def); err != nil {
		t.Fatalf("templates create: %v", err)
	}
	if _, err := run(t, dir, "", "templates", "associate", "summarize", "summary"); err != nil {
		t.Fatalf("associate: %v", err)
	}

	out, err = run(t, dir, "", "prompts", "compose", "summarize")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	for _, want := range []string{"Summarize the following.", "### reference - guide.md", "Be brief.", "## Output Format", `"summary": "Example One paragraph"`} {
		if !strings.Contains(out, want) {
			t.Errorf("composed output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, dir, "", "prompts", "compose", "summarize", "--no-relationships", "--no-templates")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if out != "Summarize the following.\n" {
		t.Errorf("expected bare content, got %q", out)
	}

	report := filepath.Join(dir, "reports", "summarize.md")
	if _, err := run(t, dir, "", "prompts", "view", "summarize", "--report", report); err != nil {
		t.Fatalf("view: %v", err)
	}
	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "# summarize") {
		t.Errorf("unexpected report header: %q", string(data)[:min(len(data), 40)])
	}
	// Clear the view-only flag so later runs of the command don't inherit it.
	promptsViewCmd.Flags().Set("report", "")

	if _, err := run(t, dir, "n\n", "prompts", "delete", "summarize"); err != nil {
		t.Fatalf("delete (declined): %v", err)
	}
	if _, err := run(t, dir, "", "prompts", "export", "summarize", filepath.Join(dir, "out.md")); err != nil {
		t.Fatalf("prompt should survive a declined delete: %v", err)
	}
	if _, err := run(t, dir, "y\n", "prompts", "delete", "summarize"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := run(t, dir, "", "prompts", "export", "summarize", filepath.Join(dir, "out2.md")); err == nil {
		t.Error("expected export of deleted prompt to fail")
	}
}

func TestCLI_InvalidTemplateRejected(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "bad.json", `{"tags": {"description": "x", "required": true, "type": "array"}}`)

	if _, err := run(t, dir, "", "templates", "create", "bad", def); err == nil {
		t.Fatal("expected invalid template error")
	}
	out, err := run(t, dir, "", "-o", "json", "templates", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("expected no templates, got %s", out)
	}
}

func TestCLI_UnknownOutputFormat(t *testing.T) {
	if _, err := run(t, t.TempDir(), "", "-o", "xml", "version"); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestCLI_ConfigInitAndMetrics(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, dir, "", "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".promptctx", "config.yaml")); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := run(t, dir, "", "config", "init"); err == nil {
		t.Error("expected error when config exists")
	}

	metricsFile := filepath.Join(dir, "metrics.prom")
	_, err := run(t, dir, "", "--metrics-out", metricsFile, "prompts", "compose", "missing")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics not written: %v", err)
	}
	if !strings.Contains(string(data), `promptctx_compositions_total{source="none",status="error"} 1`) {
		t.Errorf("expected failed composition metric:\n%s", data)
	}
}
