// Package device derives a stable device identity from client-reported
// signals, scores how trustworthy the device looks, and flags anomalous
// device behavior per user.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Signals is the client-reported fingerprint material. Only stable
// fields participate in the identity hash; volatile inputs like IP
// feed anomaly detection instead.
type Signals struct {
	UserAgent        string
	ScreenResolution string
	Timezone         string
	Language         string
	Platform         string

	WebGLVendor   string
	WebGLRenderer string
	CanvasHash    string
	AudioHash     string

	Fonts   []string
	Plugins []string

	HardwareConcurrency int
	DeviceMemory        int

	TouchSupport   bool
	CookiesEnabled bool
	AdBlocker      bool
	DoNotTrack     bool
}

// Hash returns the hex SHA-256 device identity. The digest covers the
// stable signals in a fixed order, with list-valued signals sorted, so
// the same device always produces the same hash regardless of how the
// client ordered its arrays.
func (s Signals) Hash() string {
	fonts := sortedCopy(s.Fonts)
	plugins := sortedCopy(s.Plugins)

	var b strings.Builder
	write := func(key, value string) {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte('\n')
	}

	write("ua", s.UserAgent)
	write("screen", s.ScreenResolution)
	write("tz", s.Timezone)
	write("lang", s.Language)
	write("platform", s.Platform)
	write("webgl_vendor", s.WebGLVendor)
	write("webgl_renderer", s.WebGLRenderer)
	write("canvas", s.CanvasHash)
	write("audio", s.AudioHash)
	write("fonts", strings.Join(fonts, ","))
	write("plugins", strings.Join(plugins, ","))
	write("cores", fmt.Sprintf("%d", s.HardwareConcurrency))
	write("memory", fmt.Sprintf("%d", s.DeviceMemory))
	write("touch", fmt.Sprintf("%t", s.TouchSupport))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

var botMarkers = []string{
	"bot", "crawler", "spider", "scraper", "headless",
	"phantomjs", "selenium", "puppeteer", "playwright",
	"curl", "wget", "python-requests",
}

// IsBotUA reports whether the user agent looks automated.
func IsBotUA(ua string) bool {
	lower := strings.ToLower(ua)
	for _, marker := range botMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Classify maps a user agent onto a coarse device type and OS family.
// Sessions use the pair to notice device-class changes mid-session.
func Classify(ua string) (deviceType, osFamily string) {
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		deviceType = "tablet"
	case strings.Contains(lower, "mobile") || strings.Contains(lower, "iphone") ||
		strings.Contains(lower, "android"):
		deviceType = "mobile"
	case ua == "":
		deviceType = "unknown"
	default:
		deviceType = "desktop"
	}

	switch {
	case strings.Contains(lower, "windows"):
		osFamily = "windows"
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") ||
		strings.Contains(lower, "ios"):
		osFamily = "ios"
	case strings.Contains(lower, "mac os") || strings.Contains(lower, "macintosh"):
		osFamily = "macos"
	case strings.Contains(lower, "android"):
		osFamily = "android"
	case strings.Contains(lower, "linux"):
		osFamily = "linux"
	default:
		osFamily = "other"
	}

	return deviceType, osFamily
}
