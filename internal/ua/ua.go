// internal/ua/ua.go
//
// User-Agent parsing helpers.
//
// This wrapper isolates the third-party `github.com/avct/uasurfer` API so
// the rest of the codebase never sees its enums or structs.  Telemetry
// needs exactly two things from a UA string: is the caller a human
// browser, and a short summary for the page-view row.
package ua

import (
	"fmt"
	"strconv"

	surfer "github.com/avct/uasurfer"
)

// Info carries the UA attributes used by telemetry and error reports.
type Info struct {
	Browser   string
	Version   string
	OS        string
	OSVersion string
	Device    string // "Desktop", "Mobile", "Tablet", or "Other"
	IsBot     bool
	Raw       string
}

// Parse converts a raw header into an Info struct.  After the first call
// the underlying library reuses internal buffers, so Parse allocates only
// on rarely-seen strings.
func Parse(raw string) Info {
	u := surfer.Parse(raw)

	info := Info{
		Browser:   u.Browser.Name.String(),
		Version:   versionToString(u.Browser.Version),
		OS:        u.OS.Name.String(),
		OSVersion: versionToString(u.OS.Version),
		IsBot:     u.IsBot(),
		Raw:       raw,
	}

	switch u.DeviceType {
	case surfer.DeviceComputer:
		info.Device = "Desktop"
	case surfer.DeviceTablet:
		info.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		info.Device = "Mobile"
	default:
		info.Device = "Other"
	}

	return info
}

// Summary renders a compact "Browser 125 on OS" string for persisted
// telemetry rows.  The raw header can exceed column limits; this never
// does.
func (i Info) Summary() string {
	if i.Browser == "" {
		return "Unknown"
	}
	out := i.Browser
	if i.Version != "" {
		out += " " + i.Version
	}
	if i.OS != "" {
		out += " on " + i.OS
	}
	return out
}

// versionToString renders a semantic version in dotted form while
// trimming trailing zeros, e.g. 17.0.0 → "17", 17.3.0 → "17.3".
func versionToString(v surfer.Version) string {
	if v.Major == 0 && v.Minor == 0 && v.Patch == 0 {
		return ""
	}
	if v.Patch != 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	if v.Minor != 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(int(v.Major))
}
