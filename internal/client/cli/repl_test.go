package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"testing"
)

type fakeExec struct {
	loggedIn bool

	calls       []string
	resolveArgs []string
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error {
	f.calls = append(f.calls, "register")
	return nil
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.calls = append(f.calls, "login")
	f.loggedIn = true
	return nil
}
func (f *fakeExec) Recent(ctx context.Context) error { f.calls = append(f.calls, "recent"); return nil }
func (f *fakeExec) WhoAmI(ctx context.Context) error { f.calls = append(f.calls, "whoami"); return nil }
func (f *fakeExec) Resolve(ctx context.Context, args []string) error {
	f.calls = append(f.calls, "resolve")
	f.resolveArgs = args
	return nil
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.calls = append(f.calls, "logout")
	f.loggedIn = false
	return nil
}

func captureOutput(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &lines
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	lines := captureOutput(t)

	input := strings.Join([]string{
		"help",
		"resolve download",
		"login",
		"help",
		"",
		"whoami",
		"recent",
		"foobar",
		"logout",
		"register",
		"exit",
		"login",
	}, "\n")

	exec := &fakeExec{loggedIn: false}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewReader(strings.NewReader(input)))

	want := []string{"resolve", "login", "whoami", "recent", "logout", "register"}
	if strings.Join(exec.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls: got %v, want %v", exec.calls, want)
	}
	if len(exec.resolveArgs) != 1 || exec.resolveArgs[0] != "download" {
		t.Fatalf("resolve args: %v", exec.resolveArgs)
	}

	out := strings.Join(*lines, "\n")
	for _, s := range []string{
		"as status> ",
		"Available commands: register, login, recent, resolve, exit",
		"Available commands: whoami, recent, logout, exit",
		"Unknown command: foobar",
		"Bye!",
	} {
		if !strings.Contains(out, s) {
			t.Fatalf("output missing %q:\n%s", s, out)
		}
	}
}

func TestRunREPL_EOFStops(t *testing.T) {
	captureOutput(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewReader(strings.NewReader("recent")))

	if len(exec.calls) != 1 || exec.calls[0] != "recent" {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}
