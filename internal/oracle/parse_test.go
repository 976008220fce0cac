package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProposalBareObject(t *testing.T) {
	raw := `{"action":"BUY","confidence":82,"oscillator":44,"rationale":"accumulation zone"}`
	p, err := parseProposal("DOGEUSDT", raw)
	require.NoError(t, err)

	assert.Equal(t, "DOGEUSDT", p.Symbol)
	assert.Equal(t, "BUY", p.Action)
	assert.InDelta(t, 82, p.Confidence, 1e-9)
	assert.InDelta(t, 44, p.Oscillator, 1e-9)
	assert.Equal(t, "accumulation zone", p.Rationale)
	assert.Nil(t, p.StopPctOverride)
}

func TestParseProposalEnvelope(t *testing.T) {
	raw := `{"proposal":{"symbol":"solusdt","action":"HOLD","confidence":55}}`
	p, err := parseProposal("DOGEUSDT", raw)
	require.NoError(t, err)

	// embedded symbol wins, uppercased
	assert.Equal(t, "SOLUSDT", p.Symbol)
	assert.Equal(t, "HOLD", p.Action)
}

func TestParseProposalStopOverride(t *testing.T) {
	raw := `{"action":"BUY","confidence":75,"stop_loss_pct":0.05}`
	p, err := parseProposal("DOGEUSDT", raw)
	require.NoError(t, err)
	require.NotNil(t, p.StopPctOverride)
	assert.InDelta(t, 0.05, *p.StopPctOverride, 1e-9)
}

func TestParseProposalDropsBadStopOverride(t *testing.T) {
	for _, raw := range []string{
		`{"action":"BUY","confidence":75,"stop_loss_pct":0}`,
		`{"action":"BUY","confidence":75,"stop_loss_pct":-0.02}`,
		`{"action":"BUY","confidence":75,"stop_loss_pct":0.9}`,
	} {
		p, err := parseProposal("DOGEUSDT", raw)
		require.NoError(t, err)
		assert.Nil(t, p.StopPctOverride, "raw=%s", raw)
	}
}

func TestParseProposalRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "buy doge"},
		{"array root", `[{"action":"BUY","confidence":80}]`},
		{"envelope not object", `{"proposal":"BUY"}`},
		{"missing confidence", `{"action":"BUY"}`},
		{"unknown action", `{"action":"SHORT","confidence":80}`},
		{"confidence out of range", `{"action":"BUY","confidence":140}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseProposal("DOGEUSDT", tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestCoerceProposalJSONUnwrapsEnvelope(t *testing.T) {
	obj, err := coerceProposalJSON(`  {"proposal": {"action":"BUY","confidence":70}} `)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"BUY","confidence":70}`, obj)
}

func TestParseRiskAssessment(t *testing.T) {
	ra, err := parseRiskAssessment("DOGEUSDT", `{"level":"medium","note":"volume thinning"}`)
	require.NoError(t, err)
	assert.Equal(t, "MEDIUM", ra.Level)
	assert.Equal(t, "volume thinning", ra.Note)
	assert.Equal(t, "DOGEUSDT", ra.Symbol)

	for _, raw := range []string{"", "nope", `{"level":"EXTREME"}`, `{}`} {
		_, err := parseRiskAssessment("DOGEUSDT", raw)
		assert.Error(t, err, "raw=%s", raw)
	}
}
