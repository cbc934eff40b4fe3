package verdict

import (
	"encoding/json"
	"fmt"
	"maps"

	"hvt/domain/core"
)

// Verdict is the tri-state outcome of a verification
type Verdict string

const (
	Pass    Verdict = "PASS"
	Fail    Verdict = "FAIL"
	Unknown Verdict = "UNKNOWN"
)

// ParseVerdict accepts the persisted names only
func ParseVerdict(s string) (Verdict, error) {
	switch Verdict(s) {
	case Pass, Fail, Unknown:
		return Verdict(s), nil
	default:
		return "", fmt.Errorf("unknown verdict %q", s)
	}
}

func (v Verdict) String() string { return string(v) }

func (v *Verdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVerdict(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ExtraDecisionID is the provenance extension key holding the decision id
const ExtraDecisionID = "decision_id"

// Provenance is the audit trail of one verification decision.
//
// Values are built once through NewProvenance and derived through the With*
// methods, which return copies. ModelConfidence is non-nil exactly when
// ModelInvoked is true.
type Provenance struct {
	TaskName        string         `json:"task_name"`
	RuleName        string         `json:"rule_name"`
	RulePassed      bool           `json:"rule_passed"`
	ModelName       *string        `json:"model_name"`
	ModelInvoked    bool           `json:"model_invoked"`
	ModelConfidence *float64       `json:"model_confidence"`
	CacheHit        bool           `json:"cache_hit"`
	Timestamp       core.Timestamp `json:"timestamp"`
	Extra           map[string]any `json:"extra"`
}

// NewProvenance records a rule outcome. modelName is empty when the task has
// no judge configured.
func NewProvenance(taskName, ruleName string, rulePassed bool, modelName string, extra map[string]any) Provenance {
	p := Provenance{
		TaskName:   taskName,
		RuleName:   ruleName,
		RulePassed: rulePassed,
		Timestamp:  core.Now(),
		Extra:      maps.Clone(extra),
	}
	if p.Extra == nil {
		p.Extra = map[string]any{}
	}
	if modelName != "" {
		p.ModelName = &modelName
	}
	return p
}

// WithJudge returns a copy recording that the judge was invoked
func (p Provenance) WithJudge(confidence float64) Provenance {
	out := p.clone()
	out.ModelInvoked = true
	out.ModelConfidence = &confidence
	return out
}

// WithCacheHit returns a copy marked as served from cache
func (p Provenance) WithCacheHit() Provenance {
	out := p.clone()
	out.CacheHit = true
	return out
}

// DecisionID returns the decision id stored in Extra, if any
func (p Provenance) DecisionID() core.DecisionID {
	if id, ok := p.Extra[ExtraDecisionID].(string); ok {
		return core.DecisionID(id)
	}
	return ""
}

// Validate checks the judge invariant
func (p Provenance) Validate() error {
	if p.ModelInvoked != (p.ModelConfidence != nil) {
		return fmt.Errorf("provenance for %s: model_invoked=%t but model_confidence set=%t",
			p.TaskName, p.ModelInvoked, p.ModelConfidence != nil)
	}
	return nil
}

func (p Provenance) clone() Provenance {
	out := p
	out.Extra = maps.Clone(p.Extra)
	if p.ModelName != nil {
		name := *p.ModelName
		out.ModelName = &name
	}
	if p.ModelConfidence != nil {
		c := *p.ModelConfidence
		out.ModelConfidence = &c
	}
	return out
}

// VerificationResult is the engine's output for one candidate
type VerificationResult struct {
	Verdict     Verdict        `json:"verdict"`
	Score       float64        `json:"score"`
	Provenance  Provenance     `json:"provenance"`
	Diagnostics map[string]any `json:"diagnostics"`
}

// Passed reports whether the verdict is PASS
func (r *VerificationResult) Passed() bool {
	return r != nil && r.Verdict == Pass
}

// Clone returns a deep copy of the provenance and diagnostics map
func (r *VerificationResult) Clone() *VerificationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Provenance = r.Provenance.clone()
	out.Diagnostics = maps.Clone(r.Diagnostics)
	return &out
}

// Encode serializes the result in the persisted cache-entry layout
func Encode(r *VerificationResult) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("nil verification result")
	}
	return json.Marshal(r)
}

// Decode parses a persisted cache entry. Any structural problem is reported
// as an error so callers can treat the entry as absent.
func Decode(data []byte) (*VerificationResult, error) {
	var r VerificationResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.Verdict == "" {
		return nil, fmt.Errorf("entry has no verdict")
	}
	if r.Provenance.TaskName == "" {
		return nil, fmt.Errorf("entry has no provenance")
	}
	if err := r.Provenance.Validate(); err != nil {
		return nil, err
	}
	if r.Diagnostics == nil {
		r.Diagnostics = map[string]any{}
	}
	if r.Provenance.Extra == nil {
		r.Provenance.Extra = map[string]any{}
	}
	return &r, nil
}
