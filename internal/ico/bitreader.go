package ico

// bitReader reads unsigned integers of arbitrary width from a byte slice,
// most significant bit first. The cursor is a bit offset into buf.
type bitReader struct {
	buf []byte
	pos int
}

func newBitReader(buf []byte) *bitReader {
	return &bitReader{buf: buf}
}

// Seek moves the cursor to an absolute bit offset.
func (r *bitReader) Seek(bit int) { r.pos = bit }

// Len returns the number of bits in the buffer.
func (r *bitReader) Len() int { return len(r.buf) * 8 }

// ReadBits returns the next n bits (n <= 32) as an unsigned integer. ok is
// false when fewer than n bits remain; the cursor is left unchanged then.
func (r *bitReader) ReadBits(n int) (v uint32, ok bool) {
	if n < 0 || n > 32 || r.pos+n > r.Len() {
		return 0, false
	}
	for i := 0; i < n; i++ {
		p := r.pos + i
		bit := (r.buf[p>>3] >> (7 - uint(p&7))) & 1
		v = v<<1 | uint32(bit)
	}
	r.pos += n
	return v, true
}

// BitAt returns the single bit at an absolute offset without moving the
// cursor.
func (r *bitReader) BitAt(bit int) (bool, bool) {
	if bit < 0 || bit >= r.Len() {
		return false, false
	}
	return r.buf[bit>>3]&(0x80>>uint(bit&7)) != 0, true
}
