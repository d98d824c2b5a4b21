package core

// The RP2040 SPI controller only shifts MSB first, so LSB-first transfers
// reverse every frame in software on the way out and on the way back.

// ReverseByte reverses the bit order of b
func ReverseByte(b uint8) uint8 {
	b = (b&0xF0)>>4 | (b&0x0F)<<4
	b = (b&0xCC)>>2 | (b&0x33)<<2
	b = (b&0xAA)>>1 | (b&0x55)<<1
	return b
}

// Reverse16 reverses the bit order of a 16-bit frame
func Reverse16(w uint16) uint16 {
	return uint16(ReverseByte(uint8(w)))<<8 | uint16(ReverseByte(uint8(w>>8)))
}

// AdjustBuffer copies src into dst converting between the caller's bit order
// and the wire order. dst and src may be the same slice.
// Returns the number of frames copied (the shorter of the two lengths).
func AdjustBuffer(dst, src []byte, order BitOrder) int {
	if order == MSBFirst {
		return copy(dst, src)
	}
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = ReverseByte(src[i])
	}
	return n
}

// AdjustBuffer16 is AdjustBuffer for 16-bit frames
func AdjustBuffer16(dst, src []uint16, order BitOrder) int {
	if order == MSBFirst {
		return copy(dst, src)
	}
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = Reverse16(src[i])
	}
	return n
}
