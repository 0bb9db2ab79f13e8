package heal

import "image/color"

// Tolerance is the per-channel distance within which a sampled colour matches
// a palette entry.
const Tolerance = 15

// healthPalette holds reference shades of a filled health bar.
var healthPalette = []color.RGBA{
	rgb(255, 0, 0), rgb(254, 0, 0), rgb(253, 0, 0), rgb(252, 0, 0), rgb(251, 0, 0), rgb(250, 0, 0),
	rgb(255, 1, 0), rgb(255, 2, 0), rgb(254, 1, 0), rgb(253, 1, 0), rgb(252, 1, 0),
	rgb(200, 0, 0), rgb(180, 0, 0), rgb(160, 0, 0), rgb(140, 0, 0), rgb(120, 0, 0), rgb(100, 0, 0),
	rgb(255, 50, 0), rgb(255, 40, 0), rgb(255, 30, 0), rgb(255, 20, 0), rgb(255, 10, 0),
	rgb(80, 0, 0), rgb(60, 0, 0),
}

// manaPalette holds reference shades of a filled mana bar.
var manaPalette = []color.RGBA{
	rgb(0, 0, 255), rgb(0, 0, 254), rgb(0, 0, 253), rgb(0, 0, 252), rgb(0, 0, 251), rgb(0, 0, 250),
	rgb(10, 10, 255), rgb(20, 20, 255), rgb(30, 30, 255), rgb(40, 40, 255), rgb(50, 50, 255),
	rgb(60, 60, 255), rgb(70, 70, 255), rgb(80, 80, 255), rgb(90, 90, 255), rgb(100, 100, 255),
	rgb(0, 0, 240), rgb(0, 0, 230), rgb(0, 0, 220), rgb(0, 0, 210), rgb(0, 0, 200),
	rgb(10, 10, 240), rgb(20, 20, 230), rgb(30, 30, 220), rgb(40, 40, 210), rgb(50, 50, 200),
	rgb(0, 0, 190), rgb(0, 0, 180), rgb(0, 0, 170), rgb(0, 0, 160), rgb(0, 0, 150),
	rgb(0, 0, 140), rgb(0, 0, 130), rgb(0, 0, 120), rgb(0, 0, 110), rgb(0, 0, 100),
	rgb(10, 10, 140), rgb(20, 20, 130), rgb(30, 30, 120), rgb(40, 40, 110), rgb(50, 50, 100),
	rgb(0, 0, 90), rgb(0, 0, 80), rgb(0, 0, 70), rgb(0, 0, 60), rgb(0, 0, 50),
	rgb(0, 0, 40), rgb(0, 0, 30), rgb(0, 0, 20), rgb(10, 10, 40), rgb(20, 20, 30),
	rgb(0, 20, 255), rgb(0, 40, 255), rgb(0, 60, 255), rgb(0, 80, 255), rgb(0, 100, 255),
	rgb(0, 20, 200), rgb(0, 40, 200), rgb(0, 60, 200), rgb(0, 80, 200),
	rgb(0, 20, 150), rgb(0, 40, 150), rgb(0, 60, 150),
	rgb(20, 0, 255), rgb(40, 0, 255), rgb(60, 0, 255), rgb(80, 0, 255),
	rgb(20, 0, 200), rgb(40, 0, 200), rgb(60, 0, 200),
	rgb(20, 0, 150), rgb(40, 0, 150),
	rgb(30, 40, 255), rgb(40, 50, 240), rgb(50, 60, 220), rgb(60, 70, 200),
	rgb(30, 40, 180), rgb(40, 50, 160), rgb(50, 60, 140),
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// Similar reports whether a and b are within tol on every RGB channel.
func Similar(a, b color.RGBA, tol int) bool {
	return absDiff(a.R, b.R) <= tol && absDiff(a.G, b.G) <= tol && absDiff(a.B, b.B) <= tol
}

func absDiff(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

func inPalette(c color.RGBA, palette []color.RGBA) bool {
	for _, p := range palette {
		if Similar(c, p, Tolerance) {
			return true
		}
	}
	return false
}

// IsHealth reports whether c looks like a filled health bar: a palette shade,
// or red above 50 that leads green and blue by more than 30.
func IsHealth(c color.RGBA) bool {
	if inPalette(c, healthPalette) {
		return true
	}
	r, g, b := int(c.R), int(c.G), int(c.B)
	return r > 50 && r > g+30 && r > b+30
}

// IsMana reports whether c looks like a filled mana bar: a palette shade, a
// blue above 50 that leads red and green by more than 20, or a bright blue at
// least one and a half times the red/green average.
func IsMana(c color.RGBA) bool {
	if inPalette(c, manaPalette) {
		return true
	}
	r, g, b := int(c.R), int(c.G), int(c.B)
	if b > 50 && b > r && b > g && b > max(r, g)+20 {
		return true
	}
	if b >= 100 && b >= r && b >= g {
		avg := float64(r+g) / 2
		return avg == 0 || float64(b) >= avg*1.5
	}
	return false
}
