package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runObi(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("OBI_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	status := run(append([]string{"obi"}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return status, stdout.String(), stderr.String()
}

func TestRunCommand(t *testing.T) {
	status, stdout, _ := runObi(t, "", "-c", `print("hello");`)
	assert.Equal(t, exitOK, status)
	assert.Equal(t, "hello\n", stdout)
}

func TestRunCommandArgs(t *testing.T) {
	status, stdout, _ := runObi(t, "", "-c", `print(process_args().(0));`, "first", "second")
	assert.Equal(t, exitOK, status)
	assert.Equal(t, "first\n", stdout)
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.obi"), []byte(`pub greeting := "hi";`), 0o644))
	script := filepath.Join(dir, "main.obi")
	require.NoError(t, os.WriteFile(script, []byte(`
		print(mod("lib.obi").greeting);
		print(process_args().count);
	`), 0o644))

	status, stdout, _ := runObi(t, "", script, "a", "b")
	assert.Equal(t, exitOK, status)
	assert.Equal(t, "hi\n2\n", stdout)
}

func TestRunStdin(t *testing.T) {
	status, stdout, _ := runObi(t, "i := 0; while(fun() { i < 2 }) { print(i); i = i + 1; };")
	assert.Equal(t, exitOK, status)
	assert.Equal(t, "0\n1\n", stdout)
}

func TestRunWithoutPrelude(t *testing.T) {
	status, _, stderr := runObi(t, "", "-n", "-c", "while(fun() { false }, fun() { nil });")
	assert.Equal(t, exitRuntime, status)
	assert.Contains(t, stderr, "Undefined variable 'while'.")
}

func TestExitStatuses(t *testing.T) {
	{
		status, _, stderr := runObi(t, "", "-c", "x := ;")
		assert.Equal(t, exitStatic, status)
		assert.Equal(t, "[line 1:6] Error at ';': Expect expression.\n", stderr)
	}
	{
		status, _, stderr := runObi(t, "", "-c", `-"a";`)
		assert.Equal(t, exitRuntime, status)
		assert.Equal(t, "Operand must be a number.\n[line 1:1]\n", stderr)
	}
	{
		status, _, stderr := runObi(t, "", "-x")
		assert.Equal(t, exitUsage, status)
		assert.Contains(t, stderr, "usage:")
	}
	{
		status, _, _ := runObi(t, "", filepath.Join(t.TempDir(), "missing.obi"))
		assert.Equal(t, exitNoInput, status)
	}
}

func TestHelp(t *testing.T) {
	status, stdout, _ := runObi(t, "", "-h")
	assert.Equal(t, exitOK, status)
	assert.Contains(t, stdout, "-c COMMAND")
}

func TestDumpTokens(t *testing.T) {
	status, stdout, _ := runObi(t, "", "-t", "-c", "x := 1;")
	assert.Equal(t, exitOK, status)
	assert.Contains(t, stdout, `kind = "identifier"`)
	assert.Contains(t, stdout, `"x"`)
	assert.NotContains(t, stdout, `"end-of-file"`)
	assert.True(t, strings.HasPrefix(stdout, "[\n    "))

	status, _, _ = runObi(t, "", "-t", "-c", `"open`)
	assert.Equal(t, exitStatic, status)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib")
	require.NoError(t, os.MkdirAll(lib, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "shared.obi"), []byte(`pub answer := 42;`), 0o644))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("module_path: ["+lib+"]\n"), 0o644))

	status, stdout, _ := runObi(t, "", "-C", path, "-c", `print(mod("shared.obi").answer);`)
	assert.Equal(t, exitOK, status)
	assert.Equal(t, "42\n", stdout)

	require.NoError(t, os.WriteFile(path, []byte("unknown: 1\n"), 0o644))
	status, _, stderr := runObi(t, "", "-C", path, "-c", `nil;`)
	assert.Equal(t, exitUsage, status)
	assert.Contains(t, stderr, "unknown")
}

func TestIncomplete(t *testing.T) {
	assert.True(t, incomplete("f := fun() {"))
	assert.True(t, incomplete(`print("abc`))
	assert.True(t, incomplete("t := [1, 2"))
	assert.False(t, incomplete("x := 1;"))
	assert.False(t, incomplete("x := ;"))
	assert.False(t, incomplete(""))
}

type scriptedPrompter struct {
	lines   []string
	prompts []string
}

func (self *scriptedPrompter) Prompt(prompt string) (string, error) {
	self.prompts = append(self.prompts, prompt)
	if len(self.lines) == 0 {
		return "", io.EOF
	}
	line := self.lines[0]
	self.lines = self.lines[1:]
	return line, nil
}

func TestReadUnit(t *testing.T) {
	p := &scriptedPrompter{lines: []string{"f := fun() {", "1", "};", "print(f());"}}
	{
		source, ok := readUnit(p, "> ", ". ")
		assert.True(t, ok)
		assert.Equal(t, "f := fun() {\n1\n};", source)
		assert.Equal(t, []string{"> ", ". ", ". "}, p.prompts)
	}
	{
		source, ok := readUnit(p, "> ", ". ")
		assert.True(t, ok)
		assert.Equal(t, "print(f());", source)
	}
	{
		_, ok := readUnit(p, "> ", ". ")
		assert.False(t, ok)
	}
}
