package sensor

import "time"

// Kind is what a Reading reports.
type Kind byte

// Enum of reading kinds
const (
	MeasuredTemp Kind = iota
	SetTemp
	Heater
	Pump
	Light
)

func (k Kind) String() string {
	switch k {
	case MeasuredTemp:
		return "measured_temp"
	case SetTemp:
		return "set_temp"
	case Heater:
		return "heater"
	case Pump:
		return "pump"
	case Light:
		return "light"
	}
	return "unknown"
}

// Reading is a value decoded from the display that changed and should be published.
type Reading struct {
	Kind Kind
	Temp int  // for MeasuredTemp and SetTemp
	On   bool // for Heater, Pump and Light
}

// Tracker timing and filtering. Frames arrive roughly every 20ms.
const (
	// StableFrames identical frames are needed before a value is trusted.
	StableFrames     = 2
	PumpStableFrames = 3

	// SetModeTimeout without a blank display ends set mode.
	SetModeTimeout = 2 * time.Second
	// CandidateMaxAge is how old the last shown temperature may be when publishing it as set temp.
	CandidateMaxAge = 3 * time.Second
	// HeaterOffDelay is how long the heater bit must stay clear before the heater reads off.
	HeaterOffDelay = 1 * time.Second
	// SetRefresh is how long to go without a set temp before asking the panel to show it.
	SetRefresh = 5 * time.Minute
)

// stable counts how many frames in a row produced the same value.
type stable[T comparable] struct {
	cand  T
	count int
}

func (s *stable[T]) see(v T) {
	if s.count > 0 && s.cand == v {
		if s.count < 255 {
			s.count++
		}
		return
	}
	s.cand = v
	s.count = 1
}

// Tracker turns the raw frame stream into measured temp, set temp and indicator changes.
//
// The panel shows the measured temperature most of the time. After a warm or cool press it
// enters set mode, blinking the set temperature with blank frames in between. The set temp
// is the value shown next to those blanks.
type Tracker struct {
	temp  stable[int]
	blank stable[bool]
	pump  stable[bool]
	light stable[bool]

	inSetMode     bool
	lastBlank     time.Time
	candidateTime time.Time // last time any temperature was shown
	setPotential  int       // temperature shown during set mode, -1 if none

	measured, set       int // last published, -1 unknown
	heater, pumpOn, lit int // last published, -1 unknown, 0 off, 1 on
	heaterOffSince      time.Time

	lastSetSeen time.Time
}

// NewTracker creates a tracker. now starts the set temp refresh timer.
func NewTracker(now time.Time) *Tracker {
	return &Tracker{
		setPotential: -1,
		measured:     -1,
		set:          -1,
		heater:       -1,
		pumpOn:       -1,
		lit:          -1,
		lastSetSeen:  now,
	}
}

// Feed processes one frame received at now and returns the readings that changed.
// Frames failing the checksum are ignored.
func (t *Tracker) Feed(f Frame, now time.Time) []Reading {
	if !f.Valid() {
		return nil
	}
	var out []Reading

	blank := f.Blank()
	t.blank.see(blank)
	temp := -1
	if !blank {
		temp = f.Temp()
	}
	t.temp.see(temp)
	if temp >= 0 {
		t.candidateTime = now
	}

	blankStable := t.blank.count >= StableFrames && t.blank.cand
	tempStable := t.temp.count >= StableFrames && t.temp.cand >= 0

	switch {
	case blankStable:
		t.lastBlank = now
		t.inSetMode = true
	case temp >= 0 && t.inSetMode:
		t.setPotential = temp
	}

	if t.inSetMode && now.Sub(t.lastBlank) >= SetModeTimeout {
		t.inSetMode = false
		t.setPotential = -1
	}

	if blankStable && t.setPotential >= 0 && t.setPotential != t.set && now.Sub(t.candidateTime) <= CandidateMaxAge {
		t.set = t.setPotential
		t.lastSetSeen = now
		out = append(out, Reading{Kind: SetTemp, Temp: t.set})
	}

	if !t.inSetMode && tempStable && t.temp.cand != t.measured {
		t.measured = t.temp.cand
		out = append(out, Reading{Kind: MeasuredTemp, Temp: t.measured})
	}

	// Heater turns on right away but only reads off after staying clear for a while.
	heater := t.heater
	if f.Heater() {
		heater = 1
		t.heaterOffSince = time.Time{}
	} else if t.heater == 1 {
		if t.heaterOffSince.IsZero() {
			t.heaterOffSince = now
		}
		if now.Sub(t.heaterOffSince) >= HeaterOffDelay {
			heater = 0
			t.heaterOffSince = time.Time{}
		}
	} else {
		heater = 0
	}
	if heater != t.heater {
		t.heater = heater
		out = append(out, Reading{Kind: Heater, On: heater == 1})
	}

	t.pump.see(f.Pump())
	if t.pump.count >= PumpStableFrames {
		if v := boolInt(t.pump.cand); v != t.pumpOn {
			t.pumpOn = v
			out = append(out, Reading{Kind: Pump, On: t.pump.cand})
		}
	}
	t.light.see(f.Light())
	if t.light.count >= StableFrames {
		if v := boolInt(t.light.cand); v != t.lit {
			t.lit = v
			out = append(out, Reading{Kind: Light, On: t.light.cand})
		}
	}
	return out
}

// InSetMode reports if the display is currently showing the set temperature.
func (t *Tracker) InSetMode() bool {
	return t.inSetMode
}

// SetStale reports if the set temperature has not been seen for SetRefresh.
// Pressing cool once makes the panel show it again.
func (t *Tracker) SetStale(now time.Time) bool {
	return now.Sub(t.lastSetSeen) >= SetRefresh
}

// SetRequested restarts the set temp refresh timer after asking the panel to show it.
func (t *Tracker) SetRequested(now time.Time) {
	t.lastSetSeen = now
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
