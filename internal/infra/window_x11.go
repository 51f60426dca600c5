//go:build !windows

package infra

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

const iconicState = 3 // ICCCM WM_CHANGE_STATE payload

var x11Atoms = []string{
	"_NET_CLIENT_LIST",
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_CHANGE_STATE",
	"UTF8_STRING",
}

// X11WindowManager implements domain.WindowManager against an EWMH window
// manager. The connection is opened on first use.
type X11WindowManager struct {
	mu    sync.Mutex
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
}

// NewWindowManager creates the platform window manager.
func NewWindowManager() domain.WindowManager {
	return &X11WindowManager{}
}

func (m *X11WindowManager) connect() error {
	if m.conn != nil {
		return nil
	}
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNoDisplay, err)
	}

	atoms := make(map[string]xproto.Atom, len(x11Atoms))
	for _, name := range x11Atoms {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return fmt.Errorf("intern atom %s: %w", name, err)
		}
		atoms[name] = reply.Atom
	}

	m.conn = conn
	m.root = xproto.Setup(conn).DefaultScreen(conn).Root
	m.atoms = atoms
	return nil
}

// List returns the managed client windows.
func (m *X11WindowManager) List(ctx context.Context) ([]domain.WindowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connect(); err != nil {
		return nil, err
	}

	data, err := m.property(m.root, m.atoms["_NET_CLIENT_LIST"], xproto.AtomWindow, 4096)
	if err != nil {
		return nil, fmt.Errorf("read client list: %w", err)
	}

	records := make([]domain.WindowRecord, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		win := xproto.Window(binary.LittleEndian.Uint32(data[i:]))
		records = append(records, m.describe(win))
	}
	return records, nil
}

func (m *X11WindowManager) describe(win xproto.Window) domain.WindowRecord {
	rec := domain.WindowRecord{
		Handle:  domain.WindowHandle(win),
		Enabled: true, // X11 has no disabled top-level state
	}

	if title, err := m.property(win, m.atoms["_NET_WM_NAME"], m.atoms["UTF8_STRING"], 1024); err == nil && len(title) > 0 {
		rec.Title = string(title)
	} else if title, err := m.property(win, xproto.AtomWmName, xproto.AtomString, 1024); err == nil {
		rec.Title = string(title)
	}

	if pid, err := m.property(win, m.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1); err == nil && len(pid) >= 4 {
		rec.PID = int(binary.LittleEndian.Uint32(pid))
	}

	if attrs, err := xproto.GetWindowAttributes(m.conn, win).Reply(); err == nil {
		rec.Visible = attrs.MapState == xproto.MapStateViewable
	}
	return rec
}

// Minimize asks the window manager to iconify the window.
func (m *X11WindowManager) Minimize(handle domain.WindowHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connect(); err != nil {
		return err
	}
	return m.clientMessage(xproto.Window(handle), m.atoms["WM_CHANGE_STATE"], iconicState)
}

// Activate maps the window and asks the window manager to focus it.
func (m *X11WindowManager) Activate(handle domain.WindowHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connect(); err != nil {
		return err
	}
	win := xproto.Window(handle)
	if err := xproto.MapWindowChecked(m.conn, win).Check(); err != nil {
		return fmt.Errorf("map window: %w", err)
	}
	// Source indication 1: a normal application request.
	return m.clientMessage(win, m.atoms["_NET_ACTIVE_WINDOW"], 1, xproto.TimeCurrentTime)
}

// Close releases the X connection.
func (m *X11WindowManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}

func (m *X11WindowManager) property(win xproto.Window, atom, typ xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(m.conn, false, win, atom, typ, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (m *X11WindowManager) clientMessage(win xproto.Window, typ xproto.Atom, values ...uint32) error {
	data := make([]uint32, 5)
	copy(data, values)
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   typ,
		Data:   xproto.ClientMessageDataUnionData32New(data),
	}
	mask := uint32(xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify)
	if err := xproto.SendEventChecked(m.conn, false, m.root, mask, string(ev.Bytes())).Check(); err != nil {
		return fmt.Errorf("send client message: %w", err)
	}
	return nil
}

// Ensure X11WindowManager implements domain.WindowManager.
var _ domain.WindowManager = (*X11WindowManager)(nil)
