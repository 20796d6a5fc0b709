// Package launcher implements A5: spawning a locally installed rendering
// engine and recovering its debugger websocket URL from its own startup
// output. Grounded on _teacher/chromium/allocator.go, generalized from a
// Chromium-only allocator to any engine binary that prints
// "DevTools listening on <ws-url>" on startup.
package launcher

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ByteAshen/cdpgo/errdefs"
)

// Options configures one launch (spec.md §1's "spawning the engine process"
// is out of the respecified core, but the ambient launcher still needs a
// concrete shape to exist at all).
type Options struct {
	// ExecPath overrides auto-discovery of the engine binary.
	ExecPath string
	// Flags are passed as --name or --name=value (bool true ⇒ --name).
	Flags map[string]interface{}
	Env   []string
	// UserDataDir; if empty a temp directory is created and removed on exit.
	UserDataDir string
	Timeout     time.Duration
}

// candidateExecNames mirrors allocator.go's findExecPath search list,
// generalized to the union of binary names the example repos' engines use.
var candidateExecNames = []string{
	"headless_shell",
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"google-chrome-beta",
	"google-chrome-unstable",
	"/usr/bin/google-chrome",
	"chrome",
	"chrome.exe",
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

func findExecPath() string {
	for _, path := range candidateExecNames {
		if _, err := exec.LookPath(path); err == nil {
			return path
		}
	}
	return "google-chrome"
}

// Process is a launched engine instance.
type Process struct {
	DebuggerURL string

	cmd         *exec.Cmd
	cancel      context.CancelFunc
	userDataDir string
	removeDir   bool
	wg          sync.WaitGroup
}

func buildArgs(opts Options, userDataDir *string, removeDir *bool) []string {
	args := make([]string, 0, len(opts.Flags)+2)
	for name, value := range opts.Flags {
		switch v := value.(type) {
		case string:
			args = append(args, fmt.Sprintf("--%s=%s", name, v))
		case bool:
			if v {
				args = append(args, fmt.Sprintf("--%s", name))
			}
		}
	}

	*userDataDir = opts.UserDataDir
	if *userDataDir == "" {
		dir, err := os.MkdirTemp("", "cdpgo-user-data-*")
		if err == nil {
			*userDataDir = dir
			*removeDir = true
			args = append(args, "--user-data-dir="+dir)
		}
	} else {
		args = append(args, "--user-data-dir="+*userDataDir)
	}
	if _, ok := opts.Flags["no-sandbox"]; !ok && os.Getuid() == 0 {
		args = append(args, "--no-sandbox")
	}
	if _, ok := opts.Flags["remote-debugging-port"]; !ok {
		args = append(args, "--remote-debugging-port=0")
	}
	return args
}

// readDebuggerURL scans the engine's combined stdout/stderr for the
// "DevTools listening on <url>" line allocator.go's readOutput also waits
// on, draining the rest of the stream afterward so the process never
// blocks on a full pipe buffer.
func readDebuggerURL(rc io.ReadCloser, done func()) (string, error) {
	const prefix = "DevTools listening on"
	var accumulated bytes.Buffer
	r := bufio.NewReader(rc)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("engine exited before printing its debugger url:\n%s", accumulated.String())
		}
		if len(line) >= len(prefix) && line[:len(prefix)] == prefix {
			go func() {
				_, _ = io.Copy(io.Discard, r)
				done()
			}()
			return string(bytes.TrimSpace([]byte(line[len(prefix):]))), nil
		}
		accumulated.WriteString(line)
	}
}

// Launch starts a new local engine process and blocks until its debugger
// URL is known or opts.Timeout elapses.
func Launch(ctx context.Context, opts Options) (*Process, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	execPath := opts.ExecPath
	if execPath == "" {
		execPath = findExecPath()
	}

	ctx, cancel := context.WithCancel(ctx)
	var userDataDir string
	var removeDir bool
	args := buildArgs(opts, &userDataDir, &removeDir)

	cmd := exec.CommandContext(ctx, execPath, args...)
	setProcessGroup(cmd)
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("piping engine stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting engine process %s: %w", execPath, err)
	}

	p := &Process{cmd: cmd, cancel: cancel, userDataDir: userDataDir, removeDir: removeDir}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = cmd.Wait()
		if p.removeDir {
			os.RemoveAll(p.userDataDir)
		}
	}()

	type result struct {
		url string
		err error
	}
	resCh := make(chan result, 1)
	p.wg.Add(1)
	go func() {
		url, rerr := readDebuggerURL(stdout, p.wg.Done)
		if rerr != nil {
			p.wg.Done() // readDebuggerURL only calls done on success
		}
		resCh <- result{url: url, err: rerr}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			p.Close()
			return nil, fmt.Errorf("launching engine: %w", res.err)
		}
		p.DebuggerURL = res.url
		return p, nil
	case <-time.After(opts.Timeout):
		p.Close()
		return nil, fmt.Errorf("waiting for engine debugger url: %w", errdefs.ErrConnectionFailed)
	case <-ctx.Done():
		p.Close()
		return nil, fmt.Errorf("launching engine: %w", errdefs.ErrCancelled)
	}
}

// Close terminates the engine process, if still running, and releases its
// temporary user-data directory.
func (p *Process) Close() error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if p.cmd.Process != nil {
			killProcessGroup(p.cmd.Process.Pid)
		}
		<-done
	}
	return nil
}
