// Package ports lists the serial ports a servo bus adapter may be attached to.
package ports

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Info describes one serial port.
type Info struct {
	Name        string
	Description string
	USB         bool
	VID         string
	PID         string
	Serial      string
}

func (i Info) String() string {
	if i.Description == "" {
		return i.Name
	}
	return fmt.Sprintf("%s - %s", i.Name, i.Description)
}

// List returns a best-effort snapshot of the serial ports on this machine,
// sorted by name.
func List() ([]Info, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return fromDetails(details), nil
}

func fromDetails(details []*enumerator.PortDetails) []Info {
	infos := make([]Info, 0, len(details))
	for _, d := range details {
		// Skip Bluetooth ports on macOS
		if strings.Contains(d.Name, "Bluetooth") {
			continue
		}

		info := Info{
			Name:        d.Name,
			Description: d.Product,
			USB:         d.IsUSB,
			VID:         d.VID,
			PID:         d.PID,
			Serial:      d.SerialNumber,
		}
		if info.Description == "" && d.IsUSB {
			info.Description = fmt.Sprintf("USB %s:%s", d.VID, d.PID)
		}
		infos = append(infos, info)
	}

	slices.SortFunc(infos, func(a, b Info) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return infos
}
