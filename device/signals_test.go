package device

import "testing"

func baseSignals() Signals {
	return Signals{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
		ScreenResolution:    "1920x1080",
		Timezone:            "Europe/Berlin",
		Language:            "de-DE",
		Platform:            "Win32",
		WebGLVendor:         "Google Inc.",
		WebGLRenderer:       "ANGLE (NVIDIA)",
		CanvasHash:          "c4nv4s",
		AudioHash:           "aud10",
		Fonts:               []string{"Arial", "Verdana", "Tahoma"},
		Plugins:             []string{"pdf"},
		HardwareConcurrency: 8,
		DeviceMemory:        16,
		CookiesEnabled:      true,
	}
}

func TestHashStable(t *testing.T) {
	a := baseSignals()
	b := baseSignals()

	if a.Hash() != b.Hash() {
		t.Fatal("identical signals produced different hashes")
	}
	if len(a.Hash()) != 64 {
		t.Fatalf("unexpected digest length %d", len(a.Hash()))
	}
}

func TestHashListOrderInsensitive(t *testing.T) {
	a := baseSignals()
	b := baseSignals()
	b.Fonts = []string{"Tahoma", "Arial", "Verdana"}

	if a.Hash() != b.Hash() {
		t.Fatal("font order changed the device identity")
	}
}

func TestHashSensitiveToStableSignals(t *testing.T) {
	a := baseSignals()
	b := baseSignals()
	b.ScreenResolution = "1280x720"

	if a.Hash() == b.Hash() {
		t.Fatal("distinct screen resolutions collided")
	}
}

func TestIsBotUA(t *testing.T) {
	bots := []string{
		"Googlebot/2.1",
		"curl/8.0.1",
		"python-requests/2.31",
		"Mozilla/5.0 HeadlessChrome/120.0",
		"Selenium WebDriver",
	}
	for _, ua := range bots {
		if !IsBotUA(ua) {
			t.Errorf("IsBotUA(%q) = false", ua)
		}
	}

	if IsBotUA(baseSignals().UserAgent) {
		t.Error("real browser UA flagged as bot")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		ua         string
		deviceType string
		osFamily   string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64) Chrome/120.0", "desktop", "windows"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148", "mobile", "ios"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile", "mobile", "android"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0)", "tablet", "ios"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)", "desktop", "macos"},
		{"Mozilla/5.0 (X11; Linux x86_64)", "desktop", "linux"},
		{"", "unknown", "other"},
	}

	for _, tc := range cases {
		dt, os := Classify(tc.ua)
		if dt != tc.deviceType || os != tc.osFamily {
			t.Errorf("Classify(%q) = (%s, %s), want (%s, %s)", tc.ua, dt, os, tc.deviceType, tc.osFamily)
		}
	}
}
