package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	appErr "github.com/consultra/engine/pkg/errors"
	"github.com/consultra/engine/pkg/logger"
)

// TimeoutExitCode mirrors the conventional timeout(1) exit status.
const TimeoutExitCode = 124

const defaultTimeout = 2 * time.Minute

// toolAllowlist is the fixed set of permitted leading command tokens:
// package managers and language interpreters only.
var toolAllowlist = []string{
	"cargo",
	"go",
	"node",
	"npm",
	"npx",
	"pip",
	"pip3",
	"pnpm",
	"pytest",
	"python",
	"python3",
	"yarn",
}

// Plan declares the file set and test command for one sandboxed run.
type Plan struct {
	Files       []File `json:"files"`
	TestCommand string `json:"test_command"`
}

// File is one file to materialize inside the workspace. Path is relative to
// the workspace root.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// TestResult captures the outcome of the spawned process.
type TestResult struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Killed bool   `json:"killed"`
}

// Result is the full outcome of a sandboxed run. The workspace is not
// deleted; cleanup is the caller's responsibility.
type Result struct {
	WorkspacePath string     `json:"workspace_path"`
	ToolAllowlist []string   `json:"tool_allowlist"`
	TestResult    TestResult `json:"test_result"`
	FilesWritten  []string   `json:"files_written"`
}

// Executor runs a declared, path-validated file set through one allow-listed
// command inside an ephemeral workspace with a hard wall-clock timeout.
//
// Network restriction is advisory only: the child process receives
// NO_NETWORK=1 but no OS-level isolation is applied. Operators must not rely
// on the sandbox to contain network access.
type Executor struct {
	baseDir string
	timeout time.Duration
}

// NewExecutor creates an Executor. baseDir defaults to the OS temp dir and
// timeout to two minutes.
func NewExecutor(baseDir string, timeout time.Duration) *Executor {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Executor{baseDir: baseDir, timeout: timeout}
}

// Allowlist returns a copy of the permitted command tokens.
func Allowlist() []string {
	out := make([]string, len(toolAllowlist))
	copy(out, toolAllowlist)
	return out
}

// Run validates the plan, materializes the workspace, and executes the test
// command. Validation failures abort the whole plan before any file is
// written or process spawned.
func (e *Executor) Run(ctx context.Context, plan *Plan) (*Result, error) {
	if plan == nil || len(plan.Files) == 0 {
		return nil, appErr.New(appErr.CodeInvalid, "sandbox plan declares no files")
	}

	// Validate every path before writing anything.
	for _, f := range plan.Files {
		if err := validatePath(f.Path); err != nil {
			return nil, err
		}
	}

	argv, err := validateCommand(plan.TestCommand)
	if err != nil {
		return nil, err
	}

	workspace, err := os.MkdirTemp(e.baseDir, "sandbox-")
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "create workspace failed")
	}

	written := make([]string, 0, len(plan.Files))
	for _, f := range plan.Files {
		dest := filepath.Join(workspace, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "create workspace subdirectory failed")
		}
		if err := os.WriteFile(dest, []byte(f.Content), 0o644); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "write workspace file failed")
		}
		written = append(written, f.Path)
	}
	sort.Strings(written)

	logger.L().Info("sandbox run starting",
		zap.String("workspace", workspace),
		zap.String("command", plan.TestCommand),
		zap.Int("files", len(written)),
		zap.Duration("timeout", e.timeout))

	tr := e.spawn(ctx, workspace, argv)

	logger.L().Info("sandbox run finished",
		zap.String("workspace", workspace),
		zap.Int("code", tr.Code),
		zap.Bool("killed", tr.Killed))

	return &Result{
		WorkspacePath: workspace,
		ToolAllowlist: Allowlist(),
		TestResult:    tr,
		FilesWritten:  written,
	}, nil
}

// spawn executes exactly one process inside the workspace, capturing output
// and enforcing the wall-clock timeout. A timed-out process is force-killed
// and reported with the conventional 124 exit code.
func (e *Executor) spawn(ctx context.Context, workspace string, argv []string) TestResult {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = workspace
	cmd.Stdin = nil
	cmd.Env = append(os.Environ(), "NO_NETWORK=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	tr := TestResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		tr.Killed = true
		tr.Code = TimeoutExitCode
		return tr
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			tr.Code = exitErr.ExitCode()
		} else {
			tr.Code = -1
			tr.Stderr = tr.Stderr + "\n" + err.Error()
		}
		return tr
	}

	tr.Code = 0
	return tr
}

// validatePath rejects absolute paths, home-directory shorthands, and any
// parent-directory traversal segment.
func validatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return appErr.New(appErr.CodeInvalid, "sandbox file path is empty")
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return appErr.Newf(appErr.CodeInvalid, "sandbox path %q is absolute", p)
	}
	if strings.HasPrefix(p, "~") {
		return appErr.Newf(appErr.CodeInvalid, "sandbox path %q uses a home-directory shorthand", p)
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return appErr.Newf(appErr.CodeInvalid, "sandbox path %q contains a parent-directory segment", p)
		}
	}
	return nil
}

// validateCommand tokenizes the test command and checks the leading token
// against the allow-list before any process is spawned.
func validateCommand(command string) ([]string, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, appErr.New(appErr.CodeInvalid, "sandbox test command is empty")
	}
	for _, tool := range toolAllowlist {
		if argv[0] == tool {
			return argv, nil
		}
	}
	return nil, appErr.Newf(appErr.CodeInvalid, "command %q is not in the tool allow-list", argv[0])
}
