package haproxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"grimm.is/portgate/internal/clock"
	"grimm.is/portgate/internal/logging"
)

// Stage names the activation step that failed.
type Stage string

const (
	StageStaging Stage = "staging"
	StageCheck   Stage = "check"
	StageDeploy  Stage = "deploy"
	StageRestart Stage = "restart"
)

var (
	// ErrStagingFailed means the staging document could not be written.
	// The live configuration is untouched.
	ErrStagingFailed = errors.New("staging failed")
	// ErrValidationFailed means haproxy rejected the document. The live
	// configuration is untouched.
	ErrValidationFailed = errors.New("configuration check failed")
	// ErrDeployFailed means the live configuration could not be replaced.
	ErrDeployFailed = errors.New("deploy failed")
	// ErrRestartFailed means the new file is live on disk but the service
	// did not restart.
	ErrRestartFailed = errors.New("service restart failed")
	// ErrStagingIsLive means the staging path names the live file, so a
	// rejected document would already be live before the check ran.
	ErrStagingIsLive = errors.New("staging path must differ from the live config path")
)

// ActivationError carries the failed stage and any external command output.
type ActivationError struct {
	Stage  Stage
	Output string
	Err    error
}

func (e *ActivationError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *ActivationError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *ActivationError) sentinel() error {
	switch e.Stage {
	case StageStaging:
		return ErrStagingFailed
	case StageCheck:
		return ErrValidationFailed
	case StageDeploy:
		return ErrDeployFailed
	default:
		return ErrRestartFailed
	}
}

// Checker runs the haproxy syntax check against a file.
type Checker struct {
	Runner CommandRunner
	Binary string
}

// Check returns the checker output and a non-nil error if haproxy rejects path.
func (c Checker) Check(ctx context.Context, path string) (string, error) {
	out, err := c.Runner.Output(ctx, c.Binary, "-c", "-f", path)
	return string(out), err
}

// ServiceManager controls the proxy's systemd unit.
type ServiceManager struct {
	Runner CommandRunner
	Unit   string
}

// Restart restarts the unit.
func (s ServiceManager) Restart(ctx context.Context) (string, error) {
	out, err := s.Runner.Output(ctx, "systemctl", "restart", s.Unit)
	return string(out), err
}

// IsActive reports whether the unit is active. systemctl exits non-zero for
// inactive units, which is not an error here.
func (s ServiceManager) IsActive(ctx context.Context) (bool, string) {
	out, err := s.Runner.Output(ctx, "systemctl", "is-active", s.Unit)
	state := strings.TrimSpace(string(out))
	return err == nil && state == "active", state
}

// Status returns `systemctl status` output.
func (s ServiceManager) Status(ctx context.Context) string {
	out, _ := s.Runner.Output(ctx, "systemctl", "status", "--no-pager", s.Unit)
	return string(out)
}

// Options configures an Activator.
type Options struct {
	LivePath    string
	StagingPath string
	Binary      string
	Service     string
	BackupDir   string
	MaxBackups  int
	Runner      CommandRunner
	Logger      *logging.Logger
}

// Result describes a successful activation.
type Result struct {
	Hash          string        `json:"hash"`
	Listeners     int           `json:"listeners"`
	BackupVersion int           `json:"backup_version,omitempty"`
	CheckOutput   string        `json:"check_output,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// ServiceStatus is the proxy service state.
type ServiceStatus struct {
	Active   bool   `json:"active" yaml:"active"`
	State    string `json:"state" yaml:"state"`
	Detail   string `json:"detail,omitempty" yaml:"detail,omitempty"`
	LivePath string `json:"live_path" yaml:"live_path"`
	LiveHash string `json:"live_hash,omitempty" yaml:"live_hash,omitempty"`
}

// Activator validates and deploys rendered documents.
type Activator struct {
	livePath    string
	stagingPath string
	checker     Checker
	service     ServiceManager
	backups     *BackupManager
	logger      *logging.Logger
}

// NewActivator creates an activator. Zero option values fall back to the
// stock haproxy locations.
func NewActivator(opts Options) (*Activator, error) {
	if opts.LivePath == "" {
		opts.LivePath = "/etc/haproxy/haproxy.cfg"
	}
	if opts.StagingPath == "" {
		opts.StagingPath = opts.LivePath + ".staging"
	}
	if SamePath(opts.LivePath, opts.StagingPath) {
		return nil, fmt.Errorf("%w: %s", ErrStagingIsLive, opts.StagingPath)
	}
	if opts.Binary == "" {
		opts.Binary = "haproxy"
	}
	if opts.Service == "" {
		opts.Service = "haproxy"
	}
	if opts.Runner == nil {
		opts.Runner = DefaultCommandRunner
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("haproxy")
	}
	return &Activator{
		livePath:    opts.LivePath,
		stagingPath: opts.StagingPath,
		checker:     Checker{Runner: opts.Runner, Binary: opts.Binary},
		service:     ServiceManager{Runner: opts.Runner, Unit: opts.Service},
		backups:     NewBackupManager(opts.LivePath, opts.BackupDir, opts.MaxBackups),
		logger:      opts.Logger,
	}, nil
}

// SamePath reports whether a and b name the same file, either lexically
// or through a symlink.
func SamePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ra == rb
}

// LivePath returns the managed haproxy.cfg path.
func (a *Activator) LivePath() string {
	return a.livePath
}

// Backups returns the backup manager.
func (a *Activator) Backups() *BackupManager {
	return a.backups
}

// ReadLive returns the current live configuration; a missing file reads as "".
func (a *Activator) ReadLive() (string, error) {
	data, err := os.ReadFile(a.livePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Check stages doc and runs the syntax check without deploying it.
func (a *Activator) Check(ctx context.Context, doc Document) (string, error) {
	if err := a.stage(doc); err != nil {
		return "", err
	}
	out, err := a.checker.Check(ctx, a.stagingPath)
	if err != nil {
		return out, &ActivationError{Stage: StageCheck, Output: out, Err: err}
	}
	return out, nil
}

// Activate stages, checks, backs up, deploys and restarts. The live file is
// never written unless the check passes.
func (a *Activator) Activate(ctx context.Context, doc Document) (*Result, error) {
	start := clock.Now()
	res := &Result{Hash: doc.Hash(), Listeners: len(doc.Listeners)}

	out, err := a.Check(ctx, doc)
	res.CheckOutput = strings.TrimSpace(out)
	if err != nil {
		a.logger.Warn("configuration rejected", "hash", res.Hash, "output", res.CheckOutput)
		return nil, err
	}

	backup, err := a.backups.CreateBackup(fmt.Sprintf("before %s", res.Hash))
	if err != nil {
		// keep going; a missing backup must not block a valid deploy
		a.logger.Warn("backup failed", "error", err)
	} else if backup != nil {
		res.BackupVersion = backup.Version
	}

	if err := a.deploy([]byte(doc.Text)); err != nil {
		return nil, &ActivationError{Stage: StageDeploy, Err: err}
	}

	restartOut, err := a.service.Restart(ctx)
	if err != nil {
		a.logger.Error("restart failed; new configuration is on disk", "service", a.service.Unit, "error", err)
		return nil, &ActivationError{Stage: StageRestart, Output: restartOut, Err: err}
	}

	res.Duration = clock.Since(start)
	a.logger.Info("configuration activated",
		"hash", res.Hash,
		"listeners", res.Listeners,
		"backup", res.BackupVersion,
		"duration", res.Duration)
	return res, nil
}

// Restore pushes a stored backup through the same check, deploy and restart
// pipeline.
func (a *Activator) Restore(ctx context.Context, version int) (*Result, error) {
	text, err := a.backups.Content(version)
	if err != nil {
		return nil, err
	}
	return a.Activate(ctx, Document{Text: text})
}

// Status reports the service state and the live file hash.
func (a *Activator) Status(ctx context.Context) ServiceStatus {
	active, state := a.service.IsActive(ctx)
	st := ServiceStatus{
		Active:   active,
		State:    state,
		Detail:   a.service.Status(ctx),
		LivePath: a.livePath,
	}
	if live, err := a.ReadLive(); err == nil && live != "" {
		st.LiveHash = Document{Text: live}.Hash()
	}
	return st
}

func (a *Activator) stage(doc Document) error {
	if err := os.MkdirAll(filepath.Dir(a.stagingPath), 0o755); err != nil {
		return &ActivationError{Stage: StageStaging, Err: err}
	}
	if err := os.WriteFile(a.stagingPath, []byte(doc.Text), 0o644); err != nil {
		return &ActivationError{Stage: StageStaging, Err: err}
	}
	return nil
}

// deploy writes the checked document beside the live path and renames it
// over the live file, so readers see either the old or the new document.
// The staging file is not read back; another process may have restaged it.
func (a *Activator) deploy(data []byte) error {
	perm := os.FileMode(0o644)
	if fi, err := os.Stat(a.livePath); err == nil {
		perm = fi.Mode().Perm()
	}

	dir := filepath.Dir(a.livePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(a.livePath)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, a.livePath)
}
