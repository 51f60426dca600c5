//go:build windows

package infra

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

const (
	swMinimize = 6
	swRestore  = 9
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procShowWindow          = user32.NewProc("ShowWindow")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procIsIconic            = user32.NewProc("IsIconic")
	procIsWindowEnabled     = user32.NewProc("IsWindowEnabled")

	// Callbacks are a finite resource; create one and pass state via lparam.
	enumCallback = windows.NewCallback(func(hwnd windows.HWND, lparam uintptr) uintptr {
		handles := (*[]windows.HWND)(unsafe.Pointer(lparam))
		*handles = append(*handles, hwnd)
		return 1
	})
)

// Win32WindowManager implements domain.WindowManager with user32.
type Win32WindowManager struct{}

// NewWindowManager creates the platform window manager.
func NewWindowManager() domain.WindowManager {
	return &Win32WindowManager{}
}

// List enumerates top-level windows.
func (m *Win32WindowManager) List(ctx context.Context) ([]domain.WindowRecord, error) {
	var handles []windows.HWND
	if err := windows.EnumWindows(enumCallback, unsafe.Pointer(&handles)); err != nil {
		return nil, fmt.Errorf("enumerate windows: %w", err)
	}

	records := make([]domain.WindowRecord, 0, len(handles))
	buf := make([]uint16, 512)
	for _, hwnd := range handles {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		rec := domain.WindowRecord{
			Handle:  domain.WindowHandle(hwnd),
			Visible: windows.IsWindowVisible(hwnd),
			Enabled: isEnabled(hwnd),
		}
		if n, err := windows.GetWindowText(hwnd, &buf[0], int32(len(buf))); err == nil && n > 0 {
			rec.Title = windows.UTF16ToString(buf[:n])
		}
		var pid uint32
		if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err == nil {
			rec.PID = int(pid)
		}
		records = append(records, rec)
	}
	return records, nil
}

func isEnabled(hwnd windows.HWND) bool {
	r, _, _ := procIsWindowEnabled.Call(uintptr(hwnd))
	return r != 0
}

// Minimize iconifies the window.
func (m *Win32WindowManager) Minimize(handle domain.WindowHandle) error {
	// ShowWindow returns the previous visibility, not an error code.
	procShowWindow.Call(uintptr(handle), swMinimize)
	return nil
}

// Activate restores an iconified window and brings it to the foreground.
func (m *Win32WindowManager) Activate(handle domain.WindowHandle) error {
	hwnd := uintptr(handle)
	if iconic, _, _ := procIsIconic.Call(hwnd); iconic != 0 {
		procShowWindow.Call(hwnd, swRestore)
	}
	if ok, _, err := procSetForegroundWindow.Call(hwnd); ok == 0 {
		return fmt.Errorf("SetForegroundWindow: %w", err)
	}
	return nil
}

// Close is a no-op; user32 needs no session.
func (m *Win32WindowManager) Close() error {
	return nil
}

// Ensure Win32WindowManager implements domain.WindowManager.
var _ domain.WindowManager = (*Win32WindowManager)(nil)
