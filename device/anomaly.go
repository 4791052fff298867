package device

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Risk classifies an assessment.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Anomaly flag kinds.
const (
	AnomalyImpossibleTravel    = "impossible_travel"
	AnomalyDeviceProliferation = "device_proliferation"
	AnomalyBotUserAgent        = "bot_user_agent"
	AnomalyLowTrustScore       = "low_trust_score"
)

// Anomaly is one raised flag.
type Anomaly struct {
	Kind   string
	Risk   Risk
	Detail string
}

// Assessment is the outcome of evaluating a device at login time.
type Assessment struct {
	FingerprintHash string
	TrustScore      int
	Trusted         bool
	NewDevice       bool
	Record          *Record

	Anomalies []Anomaly
	Risk      Risk

	// Blocked means the login must be refused outright. RequiresMFA
	// means the login may proceed only through step-up verification.
	Blocked     bool
	RequiresMFA bool
}

// TravelChecker detects geographically impossible logins. The default
// engine carries none; a geo-IP backed implementation can be injected.
type TravelChecker interface {
	ImpossibleTravel(ctx context.Context, userID, ip string) (bool, error)
}

// Engine evaluates devices: identity hash, trust score, trust standing,
// and anomaly flags.
type Engine struct {
	policy   TrustPolicy
	registry *Registry
	travel   TravelChecker
	logger   *zap.Logger

	// maxDevices is the per-user device count above which proliferation
	// is flagged.
	maxDevices int

	// minScore is the trust score below which a low-trust flag raises.
	minScore int

	now func() time.Time
}

// NewEngine builds a device engine. travel may be nil.
func NewEngine(policy TrustPolicy, registry *Registry, travel TravelChecker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		policy:     policy,
		registry:   registry,
		travel:     travel,
		logger:     logger,
		maxDevices: 10,
		minScore:   30,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.registry.WithClock(now)
	return e
}

// Registry exposes the underlying device registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Hash returns the device identity hash for the signals.
func (e *Engine) Hash(s Signals) string {
	return s.Hash()
}

// TrustScore returns the policy score for the signals.
func (e *Engine) TrustScore(s Signals) int {
	return e.policy.Score(s)
}

// EvaluateTrust reports whether the record is trusted under the policy.
func (e *Engine) EvaluateTrust(rec Record) bool {
	return e.policy.EvaluateTrust(rec, e.now())
}

// Assess records a device sighting and evaluates it. The assessment
// blocks a login only when risk is high and more than two flags raised
// together; a single odd signal asks for step-up instead.
func (e *Engine) Assess(ctx context.Context, userID string, sig Signals, ip string) (*Assessment, error) {
	hash := sig.Hash()
	score := e.policy.Score(sig)

	rec, isNew, err := e.registry.Observe(ctx, userID, hash, score)
	if err != nil {
		return nil, err
	}

	a := &Assessment{
		FingerprintHash: hash,
		TrustScore:      score,
		Trusted:         e.policy.EvaluateTrust(*rec, e.now()),
		NewDevice:       isNew,
		Record:          rec,
		Risk:            RiskLow,
	}

	if e.travel != nil {
		jumped, err := e.travel.ImpossibleTravel(ctx, userID, ip)
		if err != nil {
			e.logger.Warn("travel check failed", zap.Error(err))
		} else if jumped {
			a.add(AnomalyImpossibleTravel, RiskHigh, ip)
		}
	}

	if count, err := e.registry.Count(ctx, userID); err != nil {
		e.logger.Warn("device count failed", zap.Error(err))
	} else if count > e.maxDevices {
		a.add(AnomalyDeviceProliferation, RiskMedium, "")
	}

	if IsBotUA(sig.UserAgent) {
		a.add(AnomalyBotUserAgent, RiskHigh, sig.UserAgent)
	}

	if score < e.minScore {
		a.add(AnomalyLowTrustScore, RiskMedium, "")
	}

	a.Blocked = a.Risk == RiskHigh && len(a.Anomalies) > 2
	a.RequiresMFA = a.Risk != RiskLow

	return a, nil
}

func (a *Assessment) add(kind string, risk Risk, detail string) {
	a.Anomalies = append(a.Anomalies, Anomaly{Kind: kind, Risk: risk, Detail: detail})
	if risk == RiskHigh || (risk == RiskMedium && a.Risk == RiskLow) {
		a.Risk = risk
	}
}
