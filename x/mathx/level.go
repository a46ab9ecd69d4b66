package mathx

// PercentToLevel maps 0..100 to 0..255, rounding to nearest. Values above
// 100 saturate.
func PercentToLevel(p uint8) uint8 {
	if p >= 100 {
		return 255
	}
	return uint8((uint16(p)*255 + 50) / 100)
}

// Scale8 scales v by s/255 (s=255 leaves v unchanged).
func Scale8(v, s uint8) uint8 {
	if s == 255 {
		return v
	}
	return uint8((uint16(v)*uint16(s) + 127) / 255)
}

// Lerp8 interpolates between a and b by num/den, with num clamped to den.
func Lerp8(a, b uint8, num, den int64) uint8 {
	if den <= 0 || num >= den {
		return b
	}
	if num <= 0 {
		return a
	}
	d := int64(b) - int64(a)
	return uint8(int64(a) + d*num/den)
}
