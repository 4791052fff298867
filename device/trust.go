package device

import "time"

// TrustPolicy holds the additive weights behind the trust score and the
// thresholds behind trust evaluation. Scores always clamp to [0, 100].
type TrustPolicy struct {
	Base int

	// Positive evidence of a real browser.
	Canvas        int
	WebGL         int
	Audio         int
	FontDiversity int
	Cookies       int
	HumanUA       int

	// Negative evidence. Stored as positive magnitudes.
	AdBlockerPenalty int
	DNTPenalty       int
	BotPenalty       int
	MissingUAPenalty int

	// MinFontCount is the font-list size above which FontDiversity
	// applies.
	MinFontCount int

	// Trusted-device thresholds for EvaluateTrust.
	SeasonedSeenCount int
	SeasonedAge       time.Duration
	ScoredSeenCount   int
	ScoredMinScore    int
}

// DefaultTrustPolicy returns the stock weights.
func DefaultTrustPolicy() TrustPolicy {
	return TrustPolicy{
		Base:             50,
		Canvas:           10,
		WebGL:            10,
		Audio:            5,
		FontDiversity:    5,
		Cookies:          5,
		HumanUA:          10,
		AdBlockerPenalty: 5,
		DNTPenalty:       5,
		BotPenalty:       30,
		MissingUAPenalty: 20,
		MinFontCount:     10,

		SeasonedSeenCount: 5,
		SeasonedAge:       7 * 24 * time.Hour,
		ScoredSeenCount:   3,
		ScoredMinScore:    70,
	}
}

// Score computes the trust score for one set of signals.
func (p TrustPolicy) Score(s Signals) int {
	score := p.Base

	if s.CanvasHash != "" {
		score += p.Canvas
	}
	if s.WebGLVendor != "" && s.WebGLRenderer != "" {
		score += p.WebGL
	}
	if s.AudioHash != "" {
		score += p.Audio
	}
	if len(s.Fonts) > p.MinFontCount {
		score += p.FontDiversity
	}
	if s.CookiesEnabled {
		score += p.Cookies
	}

	switch {
	case s.UserAgent == "":
		score -= p.MissingUAPenalty
	case IsBotUA(s.UserAgent):
		score -= p.BotPenalty
	default:
		score += p.HumanUA
	}

	if s.AdBlocker {
		score -= p.AdBlockerPenalty
	}
	if s.DoNotTrack {
		score -= p.DNTPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// EvaluateTrust decides whether a device record is trusted enough to
// skip step-up verification. A device qualifies when it was explicitly
// verified, when it is seasoned (seen often enough for long enough), or
// when a high score coincides with repeat visits.
func (p TrustPolicy) EvaluateTrust(rec Record, now time.Time) bool {
	if rec.Trusted {
		return true
	}
	if rec.SeenCount >= p.SeasonedSeenCount && !rec.FirstSeen.IsZero() &&
		now.Sub(rec.FirstSeen) >= p.SeasonedAge {
		return true
	}
	if rec.TrustScore >= p.ScoredMinScore && rec.SeenCount >= p.ScoredSeenCount {
		return true
	}
	return false
}
