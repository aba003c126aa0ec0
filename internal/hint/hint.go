// Package hint decodes the hint-v2 overlay strip: a one-pixel-high color
// grid some target applications render into their window, carrying a short
// ASCII state token.
//
// Each pixel encodes a 7-bit value in its color channels:
//
//	G[6:4]<<4 | R[6:5]<<2 | B[6:5]
//
// A strip is framed by marker runs: [0x00 ...][0x7F ...] data [0x7F ...][0x00].
// The width of the leading marker run calibrates how many strip pixels span
// one character.
package hint

import "github.com/antiwinter/finger/internal/window"

// nibble extracts the 7-bit value of one pixel. Capture data is BGRA.
func nibble(c *window.Capture, x, y uint32) byte {
	idx := y*c.BytesPerRow + x*4
	b := c.Data[idx]
	g := c.Data[idx+1]
	r := c.Data[idx+2]

	rBits := (r >> 5) & 0x03
	gBits := (g >> 4) & 0x07
	bBits := (b >> 5) & 0x03

	return gBits<<4 | rBits<<2 | bBits
}

type run struct {
	c byte
	n uint32 // consecutive pixels with this value
}

// DecodeV2 scans a capture for the hint strip and returns the decoded
// token. The strip may sit on any of the first rows, so every 3rd row up to
// y=60 is tried.
func DecodeV2(c *window.Capture) (string, bool) {
	if c == nil || len(c.Data) == 0 {
		return "", false
	}
	maxY := c.Height
	if maxY > 60 {
		maxY = 60
	}
	for y := uint32(0); y < maxY; y += 3 {
		if s, ok := decodeRow(c, y); ok {
			return s, true
		}
	}
	return "", false
}

type fsmState int

const (
	stStart fsmState = iota
	stM0             // accumulating 0x00 marker pixels
	stM1             // accumulating 0x7F marker pixels
	stData           // accumulating data pixels
	stEnd1           // trailing 0x7F marker seen
	stDone
)

func decodeRow(c *window.Capture, y uint32) (string, bool) {
	state := stStart
	var markerWidth uint32
	var runs []run

	maxX := c.Width
	if maxX > 200 {
		maxX = 200
	}

	for x := uint32(0); x < maxX; x++ {
		if x*4+3 >= c.BytesPerRow {
			break
		}
		val := nibble(c, x, y)

		switch state {
		case stStart:
			if val == 0x00 {
				state = stM0
				markerWidth = 1
			}
		case stM0:
			switch val {
			case 0x00:
				markerWidth++
			case 0x7F:
				state = stM1
				markerWidth++
			default:
				state = stStart
			}
		case stM1:
			if val == 0x7F {
				markerWidth++
			} else {
				state = stData
				runs = append(runs, run{c: val, n: 1})
			}
		case stData:
			if val == 0x7F {
				state = stEnd1
			} else if len(runs) > 0 {
				last := &runs[len(runs)-1]
				if last.c == val {
					last.n++
				} else {
					runs = append(runs, run{c: val, n: 1})
				}
			}
		case stEnd1:
			// Absorb trailing 0x7F marker pixels until the closing 0x00.
			if val == 0x00 {
				state = stDone
			}
		}
		if state == stDone {
			break
		}
	}

	if state != stDone || len(runs) == 0 || markerWidth == 0 {
		return "", false
	}

	// The leading marker spans two characters' worth of pixels, so each
	// character spans roughly markerWidth/2 pixels.
	out := make([]byte, 0, len(runs))
	for _, r := range runs {
		count := int(float64(r.n)*2.0/float64(markerWidth) + 0.5)
		if count < 1 {
			count = 1
		}
		ch := r.c
		if !printable(ch) {
			continue
		}
		for i := 0; i < count; i++ {
			out = append(out, ch)
		}
	}

	if len(out) == 0 {
		return "", false
	}
	return string(out), true
}

func printable(c byte) bool {
	return c == ' ' || (c > 0x20 && c < 0x7F)
}
