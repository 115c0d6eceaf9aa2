//go:build !linux

package valve

func openTermios(name string, settings PortSettings) (Port, error) {
	return nil, ErrDriverUnsupported
}
