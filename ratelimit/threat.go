package ratelimit

import (
	"strings"
	"unicode"
)

// Level grades how automated a request pattern looks. Threat levels
// raise signals for step-up and audit; they never block on their own.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	default:
		return "none"
	}
}

var automationMarkers = []string{
	"curl", "wget", "python-requests", "python-urllib", "go-http-client",
	"bot", "scanner", "spider", "crawler", "scraper", "headless",
	"sqlmap", "nikto", "nmap",
}

// ThreatLevel grades an identifier/user-agent pair. Signals: automation
// tooling in the UA, sequential identifiers like user1@, user2@, and
// identifiers that are mostly digits.
func ThreatLevel(identifier, userAgent string) Level {
	signals := 0

	if hasAutomationUA(userAgent) {
		signals += 2
	}
	if userAgent == "" {
		signals++
	}
	if looksSequential(identifier) {
		signals++
	}
	if mostlyDigits(identifier) {
		signals++
	}

	switch {
	case signals >= 3:
		return LevelHigh
	case signals == 2:
		return LevelMedium
	case signals == 1:
		return LevelLow
	default:
		return LevelNone
	}
}

func hasAutomationUA(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, marker := range automationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// looksSequential flags identifiers whose local part ends in a short
// digit run, the shape of enumeration attempts (user1@, user2@, ...).
func looksSequential(identifier string) bool {
	local := identifier
	if at := strings.IndexByte(identifier, '@'); at >= 0 {
		local = identifier[:at]
	}
	if local == "" {
		return false
	}

	digits := 0
	for i := len(local) - 1; i >= 0 && unicode.IsDigit(rune(local[i])); i-- {
		digits++
	}
	return digits >= 1 && digits <= 4 && digits < len(local)
}

func mostlyDigits(identifier string) bool {
	if identifier == "" {
		return false
	}
	digits := 0
	for _, r := range identifier {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits*2 > len(identifier)
}
