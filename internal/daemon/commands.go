package daemon

// Command is an interactive control.
type Command int

const (
	CmdNone Command = iota
	CmdQuit
	CmdToggleTest
	CmdToggleFeed
	CmdSensitivityUp
	CmdSensitivityDown
	CmdSwitchCamera
)

const (
	keyCtrlC  = 3
	keyEscape = 27
)

// KeyCommand maps a key code from the feed window or the terminal to a
// command. Negative codes mean no key.
func KeyCommand(key int) Command {
	if key < 0 {
		return CmdNone
	}
	switch key & 0xFF {
	case 'q', 'Q', keyCtrlC, keyEscape:
		return CmdQuit
	case 't', 'T':
		return CmdToggleTest
	case 'h', 'H':
		return CmdToggleFeed
	case '+', '=':
		return CmdSensitivityUp
	case '-', '_':
		return CmdSensitivityDown
	case 'c', 'C':
		return CmdSwitchCamera
	}
	return CmdNone
}

func (c Command) String() string {
	switch c {
	case CmdQuit:
		return "quit"
	case CmdToggleTest:
		return "toggle-test"
	case CmdToggleFeed:
		return "toggle-feed"
	case CmdSensitivityUp:
		return "sensitivity-up"
	case CmdSensitivityDown:
		return "sensitivity-down"
	case CmdSwitchCamera:
		return "switch-camera"
	}
	return "none"
}
