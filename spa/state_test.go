package spa

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRead(t *testing.T) {
	snap := Snapshot{
		"sensor.set":      {ID: "sensor.set", Value: "103", Unit: "°F"},
		"sensor.frac":     {ID: "sensor.frac", Value: " 98.6 "},
		"sensor.unknown":  {ID: "sensor.unknown", Value: "unknown"},
		"sensor.gone":     {ID: "sensor.gone", Value: "unavailable"},
		"sensor.empty":    {ID: "sensor.empty"},
		"sensor.text":     {ID: "sensor.text", Value: "heating"},
		"sensor.nan":      {ID: "sensor.nan", Value: "NaN"},
		"sensor.infinity": {ID: "sensor.infinity", Value: "-Inf"},
	}

	v, ok := Read(snap, "sensor.set")
	assert.True(t, ok)
	assert.Equal(t, 103.0, v)

	v, ok = Read(snap, "sensor.frac")
	assert.True(t, ok)
	assert.Equal(t, 98.6, v)

	for _, id := range []string{"sensor.missing", "sensor.unknown", "sensor.gone", "sensor.empty", "sensor.text", "sensor.nan", "sensor.infinity"} {
		_, ok := Read(snap, id)
		assert.False(t, ok, id)
	}

	_, ok = Read(nil, "sensor.set")
	assert.False(t, ok)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 100, Round(99.5))
	assert.Equal(t, 99, Round(99.49))
	assert.Equal(t, 103, Round(103))
	assert.Equal(t, -2, Round(-2.5))
}

func TestFormat(t *testing.T) {
	cases := []struct {
		state EntityState
		ok    bool
		want  string
	}{
		{EntityState{Value: "103", Unit: "°F"}, true, "103°F"},
		{EntityState{Value: "98.64", Unit: "°F"}, true, "98.6°F"},
		{EntityState{Value: "98.66"}, true, "98.7"},
		{EntityState{Value: "unknown"}, true, Placeholder},
		{EntityState{Value: "unavailable"}, true, Placeholder},
		{EntityState{Value: "103"}, false, Placeholder},
		{EntityState{Value: "OH"}, true, "OH"},
		{EntityState{Value: "NaN"}, true, "NaN"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Format(tc.state, tc.ok), "%#v", tc.state)
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "esp32_spa", NormalizeName("ESP32 Spa"))
	assert.Equal(t, "back_yard_tub", NormalizeName("  Back--Yard  Tub!! "))
	assert.Equal(t, "esp32_spa", NormalizeName("esp32-spa"))
	assert.Equal(t, "", NormalizeName("___"))
}

func TestResultMessage(t *testing.T) {
	assert.Empty(t, Result{Outcome: Reached}.Message())
	assert.Equal(t, "Unable to read the current set temperature", Result{Outcome: Unreadable}.Message())
	assert.Equal(t, "Set temperature stuck at 90, wanted 200 after 6 attempts",
		Result{Outcome: LimitExceeded, Readable: true, Last: 90, Target: 200, Rounds: 6}.Message())
	assert.Equal(t, "limit-exceeded", LimitExceeded.String())
}

func TestRequestDefaults(t *testing.T) {
	r := Request{}.WithDefaults()
	assert.Equal(t, DefaultMaxRounds, r.MaxRounds)
	assert.Equal(t, DefaultPressDelay, r.PressDelay)
	assert.Equal(t, DefaultSettleDelay, r.SettleDelay)
	assert.Equal(t, DefaultMaxPresses, r.MaxPresses)

	r = Request{MaxRounds: 2, MaxPresses: 5}.WithDefaults()
	assert.Equal(t, 2, r.MaxRounds)
	assert.Equal(t, 5, r.MaxPresses)
}

func TestCheckTarget(t *testing.T) {
	for _, v := range []float64{0, 80, 103.4, 199, 200, 212} {
		assert.NoError(t, CheckTarget(v), "%v", v)
	}
	for _, v := range []float64{-1, 212.5, 1e6, 1e300, -1e300, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, CheckTarget(v), ErrTargetRange, "%v", v)
	}
}
