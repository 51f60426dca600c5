// Package main is the CLI entry point for privguard.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/privguard/internal/breach"
	"github.com/eliteGoblin/focusd/privguard/internal/camera"
	"github.com/eliteGoblin/focusd/privguard/internal/config"
	"github.com/eliteGoblin/focusd/privguard/internal/console"
	"github.com/eliteGoblin/focusd/privguard/internal/daemon"
	"github.com/eliteGoblin/focusd/privguard/internal/domain"
	"github.com/eliteGoblin/focusd/privguard/internal/infra"
	"github.com/eliteGoblin/focusd/privguard/internal/motion"
	"github.com/eliteGoblin/focusd/privguard/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "privguard",
	Short: "Camera privacy guard - hides your screen when someone walks up",
	Long: `privguard watches a camera for motion behind you. When a breach is
detected it saves a snapshot, closes the applications on the force-close
list, minimizes the other windows and brings a companion app forward.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor the camera in the foreground",
	Long: `Starts monitoring in this terminal.

Keys: q quit, t toggle test mode, h toggle camera feed,
+/- sensitivity, c switch camera.`,
	RunE: runRun,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start monitoring in the background",
	Long:  `Launches a detached "privguard run --no-feed" and records its PID.`,
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background monitor",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor status and breach totals",
	RunE:  runStatus,
}

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List available cameras",
	Long:  fmt.Sprintf(`Probes camera indices 0-%d and prints the ones that deliver frames.`, camera.MaxProbeIndex),
	RunE:  runCameras,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Close and minimize applications now",
	Long: `Runs one reconciliation: terminates processes on the force-close list
that are not protected, then minimizes the remaining visible windows.
Use --dry-run to only print what would be done.`,
	RunE: runReconcile,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent breaches",
	RunE:  runHistory,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change one setting",
	Long:  "Changes one setting. Lists are comma separated.\n\nKeys: " + strings.Join(config.SettableKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file path",
	RunE:  runConfigPath,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath   string
	runCamera    int
	runTest      bool
	runNoFeed    bool
	dryRun       bool
	historyLimit int
	jsonOutput   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Settings file (.yaml or .json)")

	runCmd.Flags().IntVar(&runCamera, "camera", 0, "Camera index (overrides camera_index)")
	runCmd.Flags().BoolVar(&runTest, "test", false, "Test mode: detect and log, never act")
	runCmd.Flags().BoolVar(&runNoFeed, "no-feed", false, "Do not show the camera feed window")
	reconcileCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without acting")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of breaches to show (0 for all)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(camerasCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the settings file. An unparseable file falls back to
// the defaults with a warning.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, config.ErrInvalid) {
		fmt.Fprintf(os.Stderr, "Warning: %v\n         Using default settings.\n", err)
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("camera") {
		cfg.CameraIndex = runCamera
	}

	// Raw mode for single-key controls. Detached runs have no terminal.
	var out io.Writer = os.Stdout
	var logOut io.Writer = os.Stderr
	keyReader := console.NewKeyReader(os.Stdin)
	keys, keyErr := keyReader.Start()
	if keyErr == nil {
		defer func() { _ = keyReader.Restore() }()
		out = keyReader.Writer(os.Stdout)
		logOut = keyReader.Writer(os.Stderr)
	}

	logger, closeLog := createLogger(cfg.LogDir, cfg.LogLevel, logOut)
	defer closeLog()
	if keyErr != nil {
		logger.Debug("keyboard controls disabled", zap.Error(keyErr))
	}

	pt := infra.NewProcessTable()
	wm := infra.NewWindowManager()
	if c, ok := wm.(io.Closer); ok {
		defer c.Close()
	}

	dataDir := infra.ExpandHome(cfg.DataDir)
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	registry := infra.NewFileRegistry(dataDir, pt)
	if entry, err := registry.Get(); err == nil && entry.PID != os.Getpid() && pt.IsRunning(entry.PID) {
		return fmt.Errorf("privguard is already running (pid %d); run 'privguard stop' first", entry.PID)
	}

	var breachLog domain.BreachLog
	if bl, err := infra.OpenBreachLog(dataDir); err != nil {
		logger.Warn("breach log unavailable, breaches will not be recorded", zap.Error(err))
	} else {
		breachLog = bl
		defer bl.Close()
	}

	detector := motion.NewDetector(motionConfig(cfg), logger.Named("motion"))
	defer detector.Close()
	opts := camera.Options{Width: cfg.FrameWidth, Height: cfg.FrameHeight, FPS: cfg.FPS}

	monitorConfig := daemon.MonitorConfig{
		CameraIndex:     cfg.CameraIndex,
		ForceClose:      cfg.ForceCloseList,
		Protected:       cfg.ProtectedProcesses,
		AutoCloseApps:   cfg.AutoCloseApps,
		CompanionApp:    cfg.CompanionApp,
		SnapshotDir:     infra.ExpandHome(cfg.SnapshotDir),
		ShowFeed:        cfg.ShowCameraFeed && !runNoFeed,
		TestMode:        runTest,
		Notify:          cfg.EnableNotifications,
		ConfigPath:      absPath(configPath),
		ResponseTimeout: time.Duration(cfg.Response.TimeoutSeconds) * time.Second,
		ShutdownGrace:   time.Duration(cfg.Response.ShutdownGraceSeconds) * time.Second,
		MaxInFlight:     cfg.Response.MaxInFlight,
	}

	monitor := daemon.NewMonitor(monitorConfig, daemon.MonitorDeps{
		Open: func(index int) (domain.FrameSource, error) {
			c, err := camera.Open(index, opts, logger.Named("camera"))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Detector:   detector,
		Debouncer:  breach.NewDebouncer(time.Duration(cfg.DetectionDelay) * time.Second),
		Reconciler: usecase.NewReconciler(pt, wm, logger.Named("reconcile")),
		Launcher:   usecase.NewLauncher(pt, wm, infra.NewAppStarter(), companionPaths(cfg), logger.Named("launcher")),
		Snapshots:  camera.NewJPEGWriter(),
		BreachLog:  breachLog,
		Registry:   registry,
		Display:    camera.NewOverlay(),
		Keys:       keys,
		Console:    out,
		Persist:    persistSetting(configPath),
	}, logger)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Privacy Guard started (camera %d, sensitivity %.0f, cooldown %ds)\n",
		cfg.CameraIndex, cfg.MotionSensitivity, cfg.DetectionDelay)
	if runTest {
		fmt.Fprintln(out, "Test mode: motion is logged, no action is taken")
	}
	if keyErr == nil {
		fmt.Fprintln(out, "Keys: q quit | t test mode | h feed | +/- sensitivity | c camera")
	}

	if err := monitor.Run(ctx); err != nil {
		logger.Error("monitoring failed", zap.Error(err))
		return err
	}
	return nil
}

func motionConfig(cfg *config.Config) motion.Config {
	return motion.Config{
		Sensitivity:   cfg.MotionSensitivity,
		WarmupFrames:  cfg.Motion.WarmupFrames,
		History:       cfg.Motion.History,
		Mixtures:      cfg.Motion.Mixtures,
		MinRegionArea: cfg.Motion.MinRegionArea,
		BlurKernel:    cfg.Motion.BlurKernel,
		MorphKernel:   cfg.Motion.MorphKernel,
		DetectShadows: cfg.Motion.DetectShadows,
	}
}

// persistSetting writes one key back to the settings file, keeping every
// other value as it is on disk.
func persistSetting(path string) func(key, value string) error {
	return func(key, value string) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Set(key, value); err != nil {
			return err
		}
		return cfg.Save(path)
	}
}

func companionPaths(cfg *config.Config) map[string]string {
	if cfg.CompanionApp == "" || cfg.CompanionAppPath == "" {
		return nil
	}
	return map[string]string{cfg.CompanionApp: infra.ExpandHome(cfg.CompanionAppPath)}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pt := infra.NewProcessTable()
	dataDir := infra.ExpandHome(cfg.DataDir)
	registry := infra.NewFileRegistry(dataDir, pt)

	if entry, err := registry.Get(); err == nil && pt.IsRunning(entry.PID) {
		fmt.Printf("privguard is already running (pid %d)\n", entry.PID)
		return nil
	}

	pid, err := daemon.StartDetached("run", "--no-feed", "--config", absPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	// Wait a moment for the monitor to open the camera and register
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if entry, err := registry.Get(); err == nil && entry.PID == pid {
			fmt.Println("\n=== privguard Started ===")
			fmt.Printf("PID: %d\n", pid)
			fmt.Printf("Camera: %d\n", entry.CameraIndex)
			fmt.Printf("Logs: %s\n", infra.ExpandHome(cfg.LogDir))
			fmt.Println("Stop with: privguard stop")
			fmt.Println("=========================")
			return nil
		}
		if !pt.IsRunning(pid) {
			return fmt.Errorf("monitor exited during startup; see logs in %s", infra.ExpandHome(cfg.LogDir))
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Printf("Monitor started (pid %d) but has not registered yet.\n", pid)
	fmt.Println("Check 'privguard status' in a moment.")
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pt := infra.NewProcessTable()
	registry := infra.NewFileRegistry(infra.ExpandHome(cfg.DataDir), pt)
	grace := time.Duration(cfg.Response.ShutdownGraceSeconds)*time.Second + 5*time.Second

	err = daemon.StopMonitor(cmd.Context(), registry, pt, grace, nil)
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Println("privguard is not running")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("privguard stopped")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pt := infra.NewProcessTable()
	dataDir := infra.ExpandHome(cfg.DataDir)
	registry := infra.NewFileRegistry(dataDir, pt)

	fmt.Println("\n=== privguard Status ===")

	entry, err := registry.Get()
	switch {
	case err != nil:
		fmt.Println("Status: NOT RUNNING")
	case !pt.IsRunning(entry.PID):
		fmt.Println("Status: NOT RUNNING (stale registration)")
	default:
		started := time.Unix(entry.StartedAt, 0)
		fmt.Println("Status: RUNNING")
		fmt.Printf("PID: %d\n", entry.PID)
		fmt.Printf("Session: %s\n", entry.SessionID)
		fmt.Printf("Camera: %d\n", entry.CameraIndex)
		fmt.Printf("Started: %s (%s)\n", humanize.Time(started), started.Format(time.DateTime))
	}

	if bl, err := infra.OpenBreachLog(dataDir); err == nil {
		defer bl.Close()
		ctx := cmd.Context()
		if total, err := bl.Count(ctx); err == nil {
			fmt.Printf("\nTotal breaches: %s\n", humanize.Comma(int64(total)))
		}
		if recent, err := bl.Recent(ctx, 1); err == nil && len(recent) > 0 {
			fmt.Printf("Last breach: %s\n", humanize.Time(recent[0].At))
		}
	}

	fmt.Printf("\nSettings: %s\n", absPath(configPath))
	fmt.Printf("Sensitivity: %.0f, cooldown: %ds, auto-close: %s\n",
		cfg.MotionSensitivity, cfg.DetectionDelay, yesNo(cfg.AutoCloseApps))
	fmt.Println("========================")
	return nil
}

func runCameras(cmd *cobra.Command, args []string) error {
	devices := camera.Probe()
	if len(devices) == 0 {
		fmt.Println("No cameras found")
		return nil
	}
	fmt.Println("Available cameras:")
	for _, d := range devices {
		fmt.Printf("  Camera %d: %dx%d\n", d.Index, d.Width, d.Height)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog := createLogger(cfg.LogDir, cfg.LogLevel, nil)
	defer closeLog()

	pt := infra.NewProcessTable()
	wm := infra.NewWindowManager()
	if c, ok := wm.(io.Closer); ok {
		defer c.Close()
	}
	reconciler := usecase.NewReconciler(pt, wm, logger)
	ctx := cmd.Context()

	if dryRun {
		plan := reconciler.Plan(ctx, cfg.ForceCloseList, cfg.ProtectedProcesses)
		fmt.Println("\n=== Reconcile (dry run) ===")
		fmt.Printf("Would close %d processes\n", len(plan.Terminate))
		for _, p := range plan.Terminate {
			fmt.Printf("  - %s (pid %d)\n", p.Name, p.PID)
		}
		fmt.Printf("Would minimize %d windows\n", len(plan.Minimize))
		for _, w := range plan.Minimize {
			fmt.Printf("  - %s\n", w.Title)
		}
		printFailures(plan.Failures)
		fmt.Println("===========================")
		return nil
	}

	result := reconciler.Reconcile(ctx, cfg.ForceCloseList, cfg.ProtectedProcesses)
	fmt.Println("\n=== Reconcile ===")
	fmt.Printf("Closed %d processes\n", len(result.Closed))
	for _, name := range result.Closed {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Printf("Minimized %d windows\n", len(result.Minimized))
	for _, title := range result.Minimized {
		fmt.Printf("  - %s\n", title)
	}
	printFailures(result.Failures)
	fmt.Printf("Took %s\n", result.Duration.Round(time.Millisecond))
	fmt.Println("=================")
	return nil
}

func printFailures(failures []domain.ActionFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Printf("Failures: %d\n", len(failures))
	for _, f := range failures {
		fmt.Printf("  - %s %s: %s\n", f.Action, f.Target, f.Err)
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bl, err := infra.OpenBreachLog(infra.ExpandHome(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("failed to open breach log: %w", err)
	}
	defer bl.Close()

	records, err := bl.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No breaches recorded")
		return nil
	}

	printHistory(os.Stdout, records)
	return nil
}

// printHistory writes records as an aligned table.
func printHistory(w io.Writer, records []domain.BreachRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tWHEN\tCLOSED\tMINIMIZED\tCOMPANION\tSNAPSHOT")
	for _, r := range records {
		snapshot := r.SnapshotPath
		if snapshot == "" {
			snapshot = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n",
			r.Count, humanize.Time(r.At), len(r.Closed), len(r.Minimized), yesNo(r.CompanionOK), snapshot)
	}
	_ = tw.Flush()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s", absPath(configPath), data)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := cfg.Save(configPath); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", args[0], args[1])
	if entry, err := infra.NewFileRegistry(infra.ExpandHome(cfg.DataDir), infra.NewProcessTable()).Get(); err == nil {
		fmt.Printf("Restart the running monitor (pid %d) to apply.\n", entry.PID)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Println(absPath(configPath))
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("privguard %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func absPath(path string) string {
	abs, err := filepath.Abs(infra.ExpandHome(path))
	if err != nil {
		return path
	}
	return abs
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
