// Package usecase contains application business logic.
package usecase

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// Reconciler closes force-close processes and minimizes everything else
// that has a visible window. Protected processes are never terminated.
type Reconciler struct {
	processes domain.ProcessTable
	windows   domain.WindowManager
	logger    *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(pt domain.ProcessTable, wm domain.WindowManager, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		processes: pt,
		windows:   wm,
		logger:    logger,
	}
}

// Plan is what a reconciliation would do, computed without side effects.
type Plan struct {
	Terminate []domain.ProcessRecord
	Minimize  []domain.WindowRecord
	Failures  []domain.ActionFailure
}

// Plan snapshots processes and windows and returns the decision without
// acting on it.
func (r *Reconciler) Plan(ctx context.Context, forceClose, protected []string) Plan {
	var plan Plan

	procs, err := r.processes.Snapshot(ctx)
	if err != nil {
		plan.Failures = append(plan.Failures, failure(domain.ActionSnapshotProcesses, "", err))
	}
	plan.Terminate = selectTargets(procs, forceClose, protected)

	wins, err := r.listWindows(ctx)
	if err != nil {
		plan.Failures = append(plan.Failures, failure(domain.ActionSnapshotWindows, "", err))
	}
	plan.Minimize = selectWindows(wins, forceClose)

	return plan
}

// Reconcile terminates every force-close process that is not protected, then
// minimizes every visible window not belonging to a force-close app.
// Per-item OS failures are recorded and never abort the call.
func (r *Reconciler) Reconcile(ctx context.Context, forceClose, protected []string) domain.ReconcileResult {
	start := time.Now()
	result := domain.ReconcileResult{
		Closed:    make([]string, 0),
		Minimized: make([]string, 0),
		Failures:  make([]domain.ActionFailure, 0),
		StartedAt: start,
	}

	procs, err := r.processes.Snapshot(ctx)
	if err != nil {
		r.logger.Warn("failed to snapshot processes", zap.Error(err))
		result.Failures = append(result.Failures, failure(domain.ActionSnapshotProcesses, "", err))
	}

	for _, p := range selectTargets(procs, forceClose, protected) {
		if err := r.processes.Terminate(ctx, p.PID); err != nil {
			r.logger.Warn("failed to terminate process",
				zap.Int("pid", p.PID),
				zap.String("name", p.Name),
				zap.Error(err))
			result.Failures = append(result.Failures, failure(domain.ActionTerminate, processTarget(p), err))
			continue
		}
		r.logger.Info("terminated process",
			zap.Int("pid", p.PID),
			zap.String("name", p.Name))
		result.Closed = append(result.Closed, p.Name)
	}

	// Windows are listed after terminations so closed apps drop out.
	wins, err := r.listWindows(ctx)
	if err != nil {
		r.logger.Warn("failed to list windows", zap.Error(err))
		result.Failures = append(result.Failures, failure(domain.ActionSnapshotWindows, "", err))
	}

	for _, w := range selectWindows(wins, forceClose) {
		if err := r.windows.Minimize(w.Handle); err != nil {
			r.logger.Debug("failed to minimize window",
				zap.String("title", w.Title),
				zap.Error(err))
			result.Failures = append(result.Failures, failure(domain.ActionMinimize, w.Title, err))
			continue
		}
		result.Minimized = append(result.Minimized, w.Title)
	}

	result.Duration = time.Since(start)
	r.logger.Info("reconciliation complete",
		zap.Int("closed", len(result.Closed)),
		zap.Int("minimized", len(result.Minimized)),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("duration", result.Duration))

	return result
}

func (r *Reconciler) listWindows(ctx context.Context) ([]domain.WindowRecord, error) {
	if r.windows == nil {
		return nil, domain.ErrNoDisplay
	}
	return r.windows.List(ctx)
}

// selectTargets returns processes named in forceClose and not in protected.
func selectTargets(procs []domain.ProcessRecord, forceClose, protected []string) []domain.ProcessRecord {
	closeSet := newNameSet(forceClose)
	keepSet := newNameSet(protected)

	var out []domain.ProcessRecord
	for _, p := range procs {
		if closeSet.has(p.Name) && !keepSet.has(p.Name) {
			out = append(out, p)
		}
	}
	return out
}

// selectWindows returns visible, enabled, titled windows whose title does not
// mention any force-close app. Title matching is approximate: a document
// named after a force-close app escapes minimization.
func selectWindows(wins []domain.WindowRecord, forceClose []string) []domain.WindowRecord {
	excluded := stems(forceClose)

	var out []domain.WindowRecord
	for _, w := range wins {
		if !w.Visible || !w.Enabled || w.Title == "" {
			continue
		}
		if titleMatchesAny(w.Title, excluded) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func processTarget(p domain.ProcessRecord) string {
	return p.Name + " (pid " + strconv.Itoa(p.PID) + ")"
}

func failure(action, target string, err error) domain.ActionFailure {
	return domain.ActionFailure{Action: action, Target: target, Err: err.Error()}
}
