// Package bundle orchestrates installing the premium recipe bundle. The Service
// owns the persisted status, progress and error of the bundle and makes sure at
// most one install runs at a time.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/italolelis/bundle_installer/internal/guard"
	"github.com/italolelis/bundle_installer/internal/logctx"
	"github.com/italolelis/bundle_installer/internal/storage"
	"github.com/italolelis/bundle_installer/internal/telemetry"
	"github.com/italolelis/bundle_installer/internal/transfer"
)

// ErrInterrupted is recorded for an install cut short by a process restart.
var ErrInterrupted = errors.New("install was interrupted, retry to continue")

// ProgressFunc receives the download progress as a fraction in [0,1].
type ProgressFunc func(fraction float64)

// Result describes a completed install.
type Result struct {
	Version     string
	RecipeCount int
}

// Job is one download, extract and write run.
type Job interface {
	Run(ctx context.Context) (Result, error)
}

// Pausable is implemented by jobs whose transfer can be paused. Both methods
// report whether the call changed anything.
type Pausable interface {
	Pause() bool
	Resume() bool
}

// Installer creates jobs bound to a progress callback.
type Installer interface {
	CreateJob(onProgress ProgressFunc) Job
}

// Cleaner is implemented by installers that can discard leftovers of a previous run.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Notifier announces the outcome of an install.
type Notifier interface {
	Notify(ctx context.Context, content string) error
}

// State is a snapshot of the persisted bundle state.
type State struct {
	Status           storage.Status     `json:"status"`
	Progress         *int               `json:"progress"`
	Error            *string            `json:"error"`
	InstalledVersion *string            `json:"installed_version"`
	Descriptor       storage.Descriptor `json:"descriptor"`
	Running          bool               `json:"running"`
}

type Option func(*Service)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Service) { s.telemetry = t }
}

// Service is the entry point for starting, pausing, resuming and retrying the
// bundle install.
type Service struct {
	prefs     storage.PreferencesRepository
	installer Installer
	guard     *guard.Guard[Result]
	retry     RetryPolicy
	notifier  Notifier
	telemetry *telemetry.Telemetry

	// mu guards job and lastProgress, and orders pause/resume status writes
	// against the terminal writes of a run.
	mu           sync.Mutex
	job          Job
	lastProgress int
}

func NewService(prefs storage.PreferencesRepository, installer Installer, opts ...Option) *Service {
	s := &Service{
		prefs:     prefs,
		installer: installer,
		guard:     guard.New[Result](),
		retry:     DefaultRetryPolicy(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start installs the bundle unless an install is already running. It reports
// whether this call ran the install.
func (s *Service) Start(ctx context.Context) (bool, error) {
	result, ran, err := s.guard.RunIfIdle(ctx, s.startOnce)
	if ran {
		s.announce(ctx, result, err)
	}

	return ran, err
}

// Retry behaves like Start but repeats failed installs following the retry
// policy. The whole sequence holds the guard, so Start calls made meanwhile are
// rejected.
func (s *Service) Retry(ctx context.Context) (bool, error) {
	result, ran, err := s.guard.RunIfIdle(ctx, s.retrySequence)
	if ran {
		s.announce(ctx, result, err)
	}

	return ran, err
}

// StartInBackground admits a Start synchronously and runs it on its own
// goroutine. It reports false, without running anything, when an install is
// already running. done, when not nil, receives the outcome.
func (s *Service) StartInBackground(ctx context.Context, done func(Result, error)) bool {
	return s.guard.GoIfIdle(ctx, s.startOnce, s.completion(ctx, done))
}

// RetryInBackground is StartInBackground for Retry.
func (s *Service) RetryInBackground(ctx context.Context, done func(Result, error)) bool {
	return s.guard.GoIfIdle(ctx, s.retrySequence, s.completion(ctx, done))
}

func (s *Service) startOnce(ctx context.Context) (Result, error) {
	return s.run(ctx, "start")
}

func (s *Service) retrySequence(ctx context.Context) (Result, error) {
	var result Result

	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error

		result, err = s.run(ctx, "retry")

		return err
	})

	return result, err
}

func (s *Service) completion(ctx context.Context, done func(Result, error)) func(Result, error) {
	return func(result Result, err error) {
		s.announce(ctx, result, err)

		if done != nil {
			done(result, err)
		}
	}
}

// RecoverInterrupted marks an install that a previous process left downloading
// or paused as failed, so it can be retried. There is no live job to resume
// such a state, so it must run before any install starts.
func (s *Service) RecoverInterrupted(ctx context.Context) (bool, error) {
	status, err := s.prefs.Status(ctx)
	if err != nil {
		return false, err
	}

	if status != storage.StatusDownloading && status != storage.StatusPaused {
		return false, nil
	}

	logctx.LoggerFromContext(ctx).Warn("found interrupted bundle install, marking it failed", "status", status)

	msg := ErrInterrupted.Error()
	if err := s.prefs.SetError(ctx, &msg); err != nil {
		return false, err
	}

	if err := s.prefs.SetStatus(ctx, storage.StatusFailed); err != nil {
		return false, err
	}

	return true, nil
}

// Pause pauses the live job's transfer. It does nothing when no job is running,
// the job cannot be paused, or the transfer is already done.
func (s *Service) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.job.(Pausable)
	if !ok || !p.Pause() {
		return nil
	}

	logctx.LoggerFromContext(ctx).Info("bundle install paused")

	return s.prefs.SetStatus(ctx, storage.StatusPaused)
}

// Resume continues a paused transfer.
func (s *Service) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.job.(Pausable)
	if !ok || !p.Resume() {
		return nil
	}

	logctx.LoggerFromContext(ctx).Info("bundle install resumed")

	return s.prefs.SetStatus(ctx, storage.StatusDownloading)
}

// State reads the persisted state.
func (s *Service) State(ctx context.Context) (State, error) {
	var (
		st  State
		err error
	)

	if st.Status, err = s.prefs.Status(ctx); err != nil {
		return State{}, err
	}

	if st.Progress, err = s.prefs.Progress(ctx); err != nil {
		return State{}, err
	}

	if st.Error, err = s.prefs.Error(ctx); err != nil {
		return State{}, err
	}

	if st.InstalledVersion, err = s.prefs.InstalledVersion(ctx); err != nil {
		return State{}, err
	}

	if st.Descriptor, err = s.prefs.Descriptor(ctx); err != nil {
		return State{}, err
	}

	st.Running = s.guard.Busy()

	return st, nil
}

// SetDescriptor stores where the next install downloads the bundle from.
func (s *Service) SetDescriptor(ctx context.Context, d storage.Descriptor) error {
	return s.prefs.SetDescriptor(ctx, d)
}

func (s *Service) run(ctx context.Context, trigger string) (Result, error) {
	var result Result

	err := s.telemetry.InstrumentInstall(ctx, trigger, func(ctx context.Context) error {
		var err error

		result, err = s.install(ctx)
		if err != nil {
			s.fail(ctx, err)

			return err
		}

		return nil
	})

	return result, err
}

func (s *Service) install(ctx context.Context) (Result, error) {
	logger := logctx.LoggerFromContext(ctx)

	if err := s.prefs.SetError(ctx, nil); err != nil {
		return Result{}, err
	}

	if err := s.prefs.SetStatus(ctx, storage.StatusDownloading); err != nil {
		return Result{}, err
	}

	if err := s.resetProgress(ctx); err != nil {
		return Result{}, err
	}

	if c, ok := s.installer.(Cleaner); ok {
		if err := c.Cleanup(ctx); err != nil {
			return Result{}, fmt.Errorf("failed to clean up previous install: %w", err)
		}
	}

	job := s.installer.CreateJob(s.progressReporter(ctx))
	s.setJob(job)

	defer s.setJob(nil)

	logger.Info("bundle install started")

	result, err := job.Run(ctx)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prefs.SetInstalledVersion(ctx, result.Version); err != nil {
		return Result{}, err
	}

	full := 100
	if err := s.prefs.SetProgress(ctx, &full); err != nil {
		return Result{}, err
	}

	if err := s.prefs.SetStatus(ctx, storage.StatusReady); err != nil {
		return Result{}, err
	}

	if err := s.prefs.SetError(ctx, nil); err != nil {
		return Result{}, err
	}

	logger.Info("bundle installed", "version", result.Version, "recipes", result.RecipeCount)

	return result, nil
}

// fail persists the failure. Persistence errors are logged, the run error wins.
func (s *Service) fail(ctx context.Context, err error) {
	logger := logctx.LoggerFromContext(ctx)
	logger.Error("bundle install failed", "err", err)

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := transfer.Describe(err)
	if perr := s.prefs.SetError(ctx, &msg); perr != nil {
		logger.Error("failed to persist install error", "err", perr)
	}

	if perr := s.prefs.SetStatus(ctx, storage.StatusFailed); perr != nil {
		logger.Error("failed to persist failed status", "err", perr)
	}
}

func (s *Service) resetProgress(ctx context.Context) error {
	s.mu.Lock()
	s.lastProgress = 0
	s.mu.Unlock()

	zero := 0

	return s.prefs.SetProgress(ctx, &zero)
}

// progressReporter persists rounded percentages, skipping values that would
// not move progress forward.
func (s *Service) progressReporter(ctx context.Context) ProgressFunc {
	logger := logctx.LoggerFromContext(ctx)

	return func(fraction float64) {
		percent := int(math.Round(fraction * 100))
		percent = min(max(percent, 0), 100)

		s.mu.Lock()
		defer s.mu.Unlock()

		if percent <= s.lastProgress {
			return
		}

		s.lastProgress = percent

		if err := s.prefs.SetProgress(ctx, &percent); err != nil {
			logger.Warn("failed to persist progress", "progress", percent, "err", err)
		}
	}
}

func (s *Service) setJob(job Job) {
	s.mu.Lock()
	s.job = job
	s.mu.Unlock()
}

// announce notifies about the final outcome of a Start or Retry call.
func (s *Service) announce(ctx context.Context, result Result, err error) {
	if s.notifier == nil {
		return
	}

	content := fmt.Sprintf("Premium bundle %s installed with %d recipes", result.Version, result.RecipeCount)
	if err != nil {
		content = "Premium bundle install failed: " + transfer.Describe(err)
	}

	if err := s.notifier.Notify(ctx, content); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to send notification", "err", err)
	}
}
