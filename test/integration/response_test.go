//go:build integration

package integration

import (
	"context"
	"os"
	"runtime"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/privguard/internal/breach"
	"github.com/eliteGoblin/focusd/privguard/internal/daemon"
	"github.com/eliteGoblin/focusd/privguard/internal/domain"
	"github.com/eliteGoblin/focusd/privguard/internal/infra"
	"github.com/eliteGoblin/focusd/privguard/internal/motion"
	"github.com/eliteGoblin/focusd/privguard/internal/usecase"
	"github.com/eliteGoblin/focusd/privguard/test/fixtures"
)

// noWindows keeps the suite away from the developer's desktop.
type noWindows struct{}

func (noWindows) List(ctx context.Context) ([]domain.WindowRecord, error) { return nil, nil }
func (noWindows) Minimize(h domain.WindowHandle) error                    { return nil }
func (noWindows) Activate(h domain.WindowHandle) error                    { return nil }

var _ = Describe("Breach response", func() {
	var (
		tmpDir    string
		target    *fixtures.FakeProcess
		bystander *fixtures.FakeProcess
		pt        *infra.ProcessTableImpl
	)

	BeforeEach(func() {
		if runtime.GOOS == "windows" {
			Skip("fake processes need a unix sleep binary")
		}
		var err error
		tmpDir, err = os.MkdirTemp("", "privguard-integration-*")
		Expect(err).NotTo(HaveOccurred())

		target, err = fixtures.StartFakeProcess(tmpDir, "pgfaketarget")
		Expect(err).NotTo(HaveOccurred())
		bystander, err = fixtures.StartFakeProcess(tmpDir, "pgbystander")
		Expect(err).NotTo(HaveOccurred())

		pt = infra.NewProcessTable()
		Eventually(func() bool { return pt.IsRunning(target.PID()) }).Should(BeTrue())
	})

	AfterEach(func() {
		if target != nil {
			target.Stop()
		}
		if bystander != nil {
			bystander.Stop()
		}
		os.RemoveAll(tmpDir)
	})

	Describe("Reconciler", func() {
		It("terminates force-close processes and leaves others running", func() {
			r := usecase.NewReconciler(pt, noWindows{}, zap.NewNop())

			result := r.Reconcile(context.Background(), []string{"PGFakeTarget"}, nil)

			Expect(result.Closed).To(ContainElement("pgfaketarget"))
			Eventually(target.Exited, 5*time.Second).Should(BeTrue())
			Consistently(bystander.Exited, 500*time.Millisecond).Should(BeFalse())
		})

		It("never terminates a protected process", func() {
			r := usecase.NewReconciler(pt, noWindows{}, zap.NewNop())

			result := r.Reconcile(context.Background(), []string{"pgfaketarget"}, []string{"pgfaketarget"})

			Expect(result.Closed).To(BeEmpty())
			Consistently(target.Exited, 500*time.Millisecond).Should(BeFalse())
		})

		It("plans without acting", func() {
			r := usecase.NewReconciler(pt, noWindows{}, zap.NewNop())

			plan := r.Plan(context.Background(), []string{"pgfaketarget"}, nil)

			Expect(plan.Terminate).To(ContainElement(domain.ProcessRecord{PID: target.PID(), Name: "pgfaketarget"}))
			Consistently(target.Exited, 300*time.Millisecond).Should(BeFalse())
		})
	})

	Describe("Monitor", func() {
		It("detects an intruder, closes the target and records one breach", func() {
			dataDir := tmpDir + "/data"
			Expect(infra.EnsureDir(dataDir)).To(Succeed())

			breachLog, err := infra.OpenBreachLog(dataDir)
			Expect(err).NotTo(HaveOccurred())
			defer breachLog.Close()
			registry := infra.NewFileRegistry(dataDir, pt)

			cfg := daemon.DefaultMonitorConfig()
			cfg.CameraIndex = 0
			cfg.ShowFeed = false
			cfg.ForceClose = []string{"pgfaketarget"}
			cfg.Protected = []string{"pgbystander"}

			scene := fixtures.NewScene(motion.DefaultConfig().WarmupFrames+5, 10)
			monitor := daemon.NewMonitor(cfg, daemon.MonitorDeps{
				Open:       func(int) (domain.FrameSource, error) { return scene, nil },
				Detector:   motion.NewDetector(motion.DefaultConfig(), zap.NewNop()),
				Debouncer:  breach.NewDebouncer(5 * time.Second),
				Reconciler: usecase.NewReconciler(pt, noWindows{}, zap.NewNop()),
				BreachLog:  breachLog,
				Registry:   registry,
			}, zap.NewNop())

			Expect(monitor.Run(context.Background())).To(Succeed())

			Expect(monitor.Stats().Breaches).To(Equal(1))
			Eventually(target.Exited, 5*time.Second).Should(BeTrue())
			Expect(bystander.Exited()).To(BeFalse())
			Expect(scene.Closed()).To(BeTrue())

			count, err := breachLog.Count(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))

			recent, err := breachLog.Recent(context.Background(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent[0].Closed).To(ContainElement("pgfaketarget"))

			_, err = registry.Get()
			Expect(err).To(MatchError(domain.ErrNotRegistered))
		})
	})

	Describe("StopMonitor", func() {
		It("terminates a registered process and clears the registry", func() {
			registry := infra.NewFileRegistry(tmpDir, pt)
			Expect(registry.Register(domain.MonitorEntry{PID: target.PID(), SessionID: "it"})).To(Succeed())

			err := daemon.StopMonitor(context.Background(), registry, pt, 5*time.Second, zap.NewNop())

			Expect(err).NotTo(HaveOccurred())
			Eventually(target.Exited, 2*time.Second).Should(BeTrue())
			Expect(registry.IsAlive()).To(BeFalse())
		})
	})
})
