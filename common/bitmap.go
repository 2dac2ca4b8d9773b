package common

// Bitmap helpers operate on a plain byte slice so that an occupancy bitmap can
// live directly inside a page's backing array without any copying. Bit i of
// the map is bit i%8 of byte i/8.

// BitmapInit zeroes the whole bitmap.
func BitmapInit(bm []byte) {
	for i := range bm {
		bm[i] = 0
	}
}

// BitmapSet sets bit pos to 1.
func BitmapSet(bm []byte, pos int) {
	bm[pos/8] |= 1 << (pos % 8)
}

// BitmapReset sets bit pos to 0.
func BitmapReset(bm []byte, pos int) {
	bm[pos/8] &^= 1 << (pos % 8)
}

// BitmapIsSet reports whether bit pos is 1.
func BitmapIsSet(bm []byte, pos int) bool {
	return bm[pos/8]&(1<<(pos%8)) != 0
}

// BitmapFirstBit returns the index of the first bit with the given value, or
// max if there is none in [0, max).
func BitmapFirstBit(value bool, bm []byte, max int) int {
	return BitmapNextBit(value, bm, max, -1)
}

// BitmapNextBit returns the index of the first bit with the given value
// strictly after curr, or max if there is none in (curr, max).
func BitmapNextBit(value bool, bm []byte, max int, curr int) int {
	for pos := curr + 1; pos < max; pos++ {
		if BitmapIsSet(bm, pos) == value {
			return pos
		}
	}
	return max
}
