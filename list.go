package valve

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
)

// allow tests to override the system views
var (
	detailedPorts = enumerator.GetDetailedPortsList
	sysfsRoot     = "/sys"
)

// PortCandidate describes one serial endpoint found by a discovery scan
type PortCandidate struct {
	Name         string
	Description  string
	Manufacturer string
	Product      string
	HardwareID   string
	SerialNumber string
	VID          uint16
	PID          uint16
	IsUSB        bool

	// Linux only, from sysfs
	BusNumber    string
	DeviceNumber string
}

// ListCandidates enumerates the serial endpoints on the system with their
// USB metadata, sorted by name
func ListCandidates() ([]PortCandidate, error) {
	details, err := detailedPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	candidates := make([]PortCandidate, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		c := PortCandidate{
			Name:         d.Name,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
			VID:          parseHexID(d.VID),
			PID:          parseHexID(d.PID),
		}
		if c.IsUSB {
			enrichUSBInfo(&c)
		}
		c.Description = describe(c)
		c.HardwareID = hardwareID(c)
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Name < candidates[j].Name
	})
	return candidates, nil
}

// FindCandidate returns the candidate for one endpoint
func FindCandidate(name string) (PortCandidate, error) {
	candidates, err := ListCandidates()
	if err != nil {
		return PortCandidate{}, err
	}
	for _, c := range candidates {
		if c.Name == name {
			return c, nil
		}
	}
	return PortCandidate{}, fmt.Errorf("%s: %w", name, ErrUSBInfoNotAvailable)
}

func parseHexID(s string) uint16 {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

func describe(c PortCandidate) string {
	if c.Product != "" {
		return c.Product
	}
	return getPortDescription(filepath.Base(c.Name))
}

func hardwareID(c PortCandidate) string {
	if !c.IsUSB {
		return "n/a"
	}
	id := fmt.Sprintf("USB VID:PID=%04X:%04X", c.VID, c.PID)
	if c.SerialNumber != "" {
		id += " SER=" + c.SerialNumber
	}
	return id
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	case strings.HasPrefix(name, "COM"):
		return "Communications Port"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo fills manufacturer, bus and device numbers from sysfs by
// walking up from the tty's device link to the USB device directory
func enrichUSBInfo(c *PortCandidate) {
	link := filepath.Join(sysfsRoot, "class", "tty", filepath.Base(c.Name), "device")
	dir, err := filepath.EvalSymlinks(link)
	if err != nil {
		return
	}

	root := filepath.Clean(sysfsRoot)
	for i := 0; i < 5 && dir != root && dir != string(filepath.Separator); i++ {
		if readSysfsFile(filepath.Join(dir, "idVendor")) != "" {
			break
		}
		dir = filepath.Dir(dir)
	}
	if readSysfsFile(filepath.Join(dir, "idVendor")) == "" {
		return
	}

	if c.VID == 0 {
		c.VID = parseHexID(readSysfsFile(filepath.Join(dir, "idVendor")))
	}
	if c.PID == 0 {
		c.PID = parseHexID(readSysfsFile(filepath.Join(dir, "idProduct")))
	}
	if c.SerialNumber == "" {
		c.SerialNumber = readSysfsFile(filepath.Join(dir, "serial"))
	}
	if c.Product == "" {
		c.Product = readSysfsFile(filepath.Join(dir, "product"))
	}
	c.Manufacturer = readSysfsFile(filepath.Join(dir, "manufacturer"))
	c.BusNumber = readSysfsFile(filepath.Join(dir, "busnum"))
	c.DeviceNumber = readSysfsFile(filepath.Join(dir, "devnum"))
}

// readSysfsFile returns the trimmed content of a sysfs attribute, or ""
func readSysfsFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
