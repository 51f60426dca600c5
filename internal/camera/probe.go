package camera

import "gocv.io/x/gocv"

// MaxProbeIndex is the highest device index Probe tries.
const MaxProbeIndex = 4

// DeviceInfo describes an available camera.
type DeviceInfo struct {
	Index  int
	Width  int
	Height int
}

// Probe opens indices 0..MaxProbeIndex and reports the ones that deliver a
// frame.
func Probe() []DeviceInfo {
	var found []DeviceInfo
	for i := 0; i <= MaxProbeIndex; i++ {
		if info, ok := probeOne(i); ok {
			found = append(found, info)
		}
	}
	return found
}

func probeOne(index int) (DeviceInfo, bool) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return DeviceInfo{}, false
	}
	defer vc.Close()
	if !vc.IsOpened() {
		return DeviceInfo{}, false
	}

	m := gocv.NewMat()
	defer m.Close()
	if !vc.Read(&m) || m.Empty() {
		return DeviceInfo{}, false
	}
	return DeviceInfo{Index: index, Width: m.Cols(), Height: m.Rows()}, true
}
