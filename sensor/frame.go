package sensor

import "math/bits"

// Frame is one 24 bit frame clocked out to the spa's top side display.
//
//	bits 23..17  p1  flags (hundreds, heater) + checksum bits
//	bits 16..10  p2  tens digit, 7 segment
//	bits  9..3   p3  ones digit, 7 segment
//	bits  2..0   p4  status (pump, light) + checksum bit
type Frame uint32

const (
	frameBits    = 24
	p1CheckMask  = 0x4B // bits 6,3,1,0 of p1 are always clear
	p4CheckMask  = 0x1
	hundredsMask = 0x30
)

// Parts splits the frame into its four fields.
func (f Frame) Parts() (p1, p2, p3, p4 uint8) {
	v := uint32(f) & 0xFFFFFF
	return uint8(v>>17) & 0x7F, uint8(v>>10) & 0x7F, uint8(v>>3) & 0x7F, uint8(v) & 0x7
}

// Valid checks the fixed zero bits that act as the frame checksum.
func (f Frame) Valid() bool {
	p1, _, _, p4 := f.Parts()
	return p1&p1CheckMask == 0 && p4&p4CheckMask == 0
}

// Blank is true when both digits are dark. The panel blinks blank while showing the set temperature.
func (f Frame) Blank() bool {
	_, p2, p3, _ := f.Parts()
	return p2 == 0 && p3 == 0
}

// Temp decodes the displayed temperature, -1 if the digits can't be read.
func (f Frame) Temp() int {
	p1, p2, p3, _ := f.Parts()
	d2, d3 := Digit(p2), Digit(p3)
	if d2 < 0 || d3 < 0 {
		return -1
	}
	t := d2*10 + d3
	if p1&hundredsMask == hundredsMask {
		t += 100
	}
	return t
}

// Heater is the heater indicator (p1 bit 2).
func (f Frame) Heater() bool {
	p1, _, _, _ := f.Parts()
	return p1>>2&1 == 1
}

// Pump is the pump indicator (p4 bit 2).
func (f Frame) Pump() bool {
	_, _, _, p4 := f.Parts()
	return p4>>2&1 == 1
}

// Light is the light indicator (p4 bit 1).
func (f Frame) Light() bool {
	_, _, _, p4 := f.Parts()
	return p4>>1&1 == 1
}

// segments for 0-9, bit6=a(top) .. bit0=g(middle)
var segments = [10]uint8{
	0b1111110, // 0
	0b0110000, // 1
	0b1101101, // 2
	0b1111001, // 3
	0b0110011, // 4
	0b1011011, // 5
	0b1011111, // 6
	0b1110000, // 7
	0b1111111, // 8
	0b1110011, // 9
}

// Digit decodes a 7 segment pattern. A single flipped bit is tolerated and the
// pattern is also tried in reverse bit order. Returns -1 if nothing matches.
func Digit(seg uint8) int {
	if d := matchDigit(seg); d >= 0 {
		return d
	}
	return matchDigit(reverse7(seg))
}

func matchDigit(seg uint8) int {
	best, bestDist := -1, 8
	for d, pat := range segments {
		dist := bits.OnesCount8(seg ^ pat)
		if dist == 0 {
			return d
		}
		if dist < bestDist {
			best, bestDist = d, dist
		}
	}
	if bestDist <= 1 {
		return best
	}
	return -1
}

func reverse7(seg uint8) uint8 {
	var r uint8
	for i := 0; i < 7; i++ {
		r |= (seg >> i & 1) << (6 - i)
	}
	return r
}
