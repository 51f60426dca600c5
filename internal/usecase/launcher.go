package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// Launcher brings a named application to the foreground, starting it when
// it is not running.
type Launcher struct {
	processes domain.ProcessTable
	windows   domain.WindowManager
	starter   domain.AppStarter
	paths     map[string]string
	logger    *zap.Logger
}

// NewLauncher creates a launcher. paths maps app names to executables used
// when the app must be started; keys are normalized on the way in.
func NewLauncher(
	pt domain.ProcessTable,
	wm domain.WindowManager,
	starter domain.AppStarter,
	paths map[string]string,
	logger *zap.Logger,
) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	norm := make(map[string]string, len(paths))
	for name, path := range paths {
		if path != "" {
			norm[NameStem(name)] = path
		}
	}
	return &Launcher{
		processes: pt,
		windows:   wm,
		starter:   starter,
		paths:     norm,
		logger:    logger,
	}
}

// EnsureForeground activates the app's window if it runs, or starts it.
// A running app without a window counts as success.
func (l *Launcher) EnsureForeground(ctx context.Context, appName string) bool {
	name := NormalizeName(appName)
	if name == "" {
		return false
	}

	pids := l.runningPIDs(ctx, name)
	if len(pids) == 0 {
		return l.launch(name)
	}

	win, ok := l.findWindow(ctx, appName, pids)
	if !ok {
		l.logger.Info("app running without a window",
			zap.String("app", name),
			zap.Ints("pids", pids))
		return true
	}

	if err := l.windows.Activate(win.Handle); err != nil {
		l.logger.Warn("failed to activate window",
			zap.String("app", name),
			zap.String("title", win.Title),
			zap.Error(err))
		return false
	}
	l.logger.Info("brought app to foreground",
		zap.String("app", name),
		zap.String("title", win.Title))
	return true
}

func (l *Launcher) runningPIDs(ctx context.Context, name string) []int {
	procs, err := l.processes.Snapshot(ctx)
	if err != nil {
		l.logger.Warn("failed to snapshot processes", zap.Error(err))
		return nil
	}
	var pids []int
	for _, p := range procs {
		if SameProgram(p.Name, name) {
			pids = append(pids, p.PID)
		}
	}
	return pids
}

// findWindow prefers a window owned by one of pids and falls back to a
// title containing the app's stem.
func (l *Launcher) findWindow(ctx context.Context, appName string, pids []int) (domain.WindowRecord, bool) {
	if l.windows == nil {
		return domain.WindowRecord{}, false
	}
	wins, err := l.windows.List(ctx)
	if err != nil {
		l.logger.Debug("failed to list windows", zap.Error(err))
		return domain.WindowRecord{}, false
	}

	owned := make(map[int]bool, len(pids))
	for _, pid := range pids {
		owned[pid] = true
	}
	for _, w := range wins {
		if w.Title != "" && owned[w.PID] {
			return w, true
		}
	}

	stem := []string{NameStem(appName)}
	if stem[0] == "" {
		return domain.WindowRecord{}, false
	}
	for _, w := range wins {
		if w.Title != "" && titleMatchesAny(w.Title, stem) {
			return w, true
		}
	}
	return domain.WindowRecord{}, false
}

func (l *Launcher) launch(name string) bool {
	path, ok := l.paths[NameStem(name)]
	if !ok {
		l.logger.Warn("app not running and no launch path configured", zap.String("app", name))
		return false
	}
	if l.starter == nil {
		return false
	}
	pid, err := l.starter.Start(path)
	if err != nil {
		l.logger.Warn("failed to launch app",
			zap.String("app", name),
			zap.String("path", path),
			zap.Error(err))
		return false
	}
	l.logger.Info("launched app",
		zap.String("app", name),
		zap.String("path", path),
		zap.Int("pid", pid))
	return true
}
