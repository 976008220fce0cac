package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"coinward/internal/logger"
)

const proposalSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action", "confidence"],
  "properties": {
    "symbol": {"type": "string"},
    "action": {"type": "string", "enum": ["BUY", "SELL", "HOLD"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "oscillator": {"type": "number", "minimum": 0, "maximum": 100},
    "stop_loss_pct": {"type": "number"},
    "rationale": {"type": "string"}
  }
}`

var proposalSchema = jsonschema.MustCompileString("proposal.json", proposalSchemaJSON)

// coerceProposalJSON accepts the response either as a bare proposal object or
// wrapped in a {"proposal": {...}} envelope and returns the object raw.
func coerceProposalJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("oracle: empty response body")
	}
	if !gjson.Valid(raw) {
		return "", fmt.Errorf("oracle: response is not valid JSON")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return "", fmt.Errorf("oracle: response root must be an object")
	}
	if inner := parsed.Get("proposal"); inner.Exists() {
		if !inner.IsObject() {
			return "", fmt.Errorf("oracle: proposal field must be an object")
		}
		return strings.TrimSpace(inner.Raw), nil
	}
	return raw, nil
}

// parseProposal validates the raw object against the schema and extracts a
// Proposal. An out-of-range stop override is dropped, not propagated: the
// policy default is always a safe answer, a bad stop is not.
func parseProposal(symbol, raw string) (Proposal, error) {
	obj, err := coerceProposalJSON(raw)
	if err != nil {
		return Proposal{}, err
	}

	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return Proposal{}, fmt.Errorf("oracle: decode response: %w", err)
	}
	if err := proposalSchema.Validate(doc); err != nil {
		return Proposal{}, fmt.Errorf("oracle: response failed schema validation: %w", err)
	}

	parsed := gjson.Parse(obj)
	p := Proposal{
		Symbol:     symbol,
		Action:     strings.ToUpper(strings.TrimSpace(parsed.Get("action").String())),
		Confidence: parsed.Get("confidence").Float(),
		Oscillator: parsed.Get("oscillator").Float(),
		Rationale:  strings.TrimSpace(parsed.Get("rationale").String()),
	}
	if s := parsed.Get("symbol"); s.Exists() && strings.TrimSpace(s.String()) != "" {
		p.Symbol = strings.ToUpper(strings.TrimSpace(s.String()))
	}
	if stop := parsed.Get("stop_loss_pct"); stop.Exists() {
		v := stop.Float()
		if v > 0 && v < 0.5 {
			p.StopPctOverride = &v
		} else {
			logger.Warnf("oracle: dropped out-of-range stop override %.4f for %s", v, symbol)
		}
	}
	return p, nil
}

func parseRiskAssessment(symbol, raw string) (RiskAssessment, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return RiskAssessment{}, fmt.Errorf("oracle: risk response is not valid JSON")
	}
	parsed := gjson.Parse(raw)
	level := strings.ToUpper(strings.TrimSpace(parsed.Get("level").String()))
	switch level {
	case "LOW", "MEDIUM", "HIGH":
	default:
		return RiskAssessment{}, fmt.Errorf("oracle: unknown risk level %q", level)
	}
	return RiskAssessment{
		Symbol: symbol,
		Level:  level,
		Note:   strings.TrimSpace(parsed.Get("note").String()),
	}, nil
}
