package pir

// Flatten concatenates records after checking they all have the same size.
func Flatten(records [][]byte) ([]byte, int, error) {
	if len(records) == 0 {
		return nil, 0, ErrInvalidArgument.New("empty record set")
	}
	size := len(records[0])
	if size == 0 {
		return nil, 0, ErrInvalidArgument.New("record size must be >= 1")
	}
	flat := make([]byte, 0, len(records)*size)
	for i, r := range records {
		if len(r) != size {
			return nil, 0, ErrConfig.New("database item size inconsistent: record %d has %d bytes, expected %d", i, len(r), size)
		}
		flat = append(flat, r...)
	}
	return flat, size, nil
}

// EncodeRecords packs a flat buffer of RecordCount*RecordSize bytes into
// plaintexts of N coefficients. Each plaintext carries RecordsPerPlaintext whole
// records as a big-endian bit stream cut into UsableBits-wide coefficients, and
// the remaining coefficients are set to 1. Plaintext i starts at byte
// i*RecordsPerPlaintext*RecordSize.
func EncodeRecords(g Geometry, data []byte) ([][]uint64, error) {
	if want := g.Params.RecordCount * g.Params.RecordSize; len(data) != want {
		return nil, ErrInvalidArgument.New("record buffer has %d bytes, expected %d", len(data), want)
	}

	chunk := g.RecordsPerPlaintext * g.Params.RecordSize
	encoded := make([][]uint64, 0, g.PlaintextCount)
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		coeffs := make([]uint64, g.N)
		n := packBits(coeffs, data[off:end], g.UsableBits)
		for i := n; i < g.N; i++ {
			coeffs[i] = 1
		}
		encoded = append(encoded, coeffs)
	}

	if capacity := g.Capacity(); len(encoded) > capacity {
		return nil, ErrInvalidArgument.New("encoded %d plaintexts, dimension vector %v holds %d", len(encoded), g.Dimensions, capacity)
	}
	return encoded, nil
}

// DecodePlaintext reverses EncodeRecords for a single plaintext and returns the
// RecordsPerPlaintext*RecordSize bytes it carries.
func DecodePlaintext(g Geometry, coeffs []uint64) ([]byte, error) {
	if len(coeffs) != g.N {
		return nil, ErrInvalidArgument.New("plaintext has %d coefficients, expected %d", len(coeffs), g.N)
	}
	buf := make([]byte, g.RecordsPerPlaintext*g.Params.RecordSize)
	unpackBits(buf, coeffs, g.UsableBits)
	return buf, nil
}

// DecodeRecord extracts the record stored at offset of a decrypted plaintext.
func DecodeRecord(g Geometry, coeffs []uint64, offset int) ([]byte, error) {
	if offset < 0 || offset >= g.RecordsPerPlaintext {
		return nil, ErrInvalidArgument.New("record offset %d outside [0, %d)", offset, g.RecordsPerPlaintext)
	}
	buf, err := DecodePlaintext(g, coeffs)
	if err != nil {
		return nil, err
	}
	size := g.Params.RecordSize
	return buf[offset*size : (offset+1)*size], nil
}

// packBits writes src as width-bit coefficients, most significant bit first, and
// returns the number of coefficients written. The last coefficient is padded
// with zero bits on the right.
func packBits(dst []uint64, src []byte, width int) int {
	mask := uint64(1)<<width - 1
	var acc uint64
	pending, n := 0, 0
	for _, b := range src {
		acc = acc<<8 | uint64(b)
		pending += 8
		for pending >= width {
			pending -= width
			dst[n] = (acc >> pending) & mask
			n++
		}
		acc &= uint64(1)<<pending - 1
	}
	if pending > 0 {
		dst[n] = (acc << (width - pending)) & mask
		n++
	}
	return n
}

// unpackBits fills dst from width-bit coefficients, most significant bit first.
func unpackBits(dst []byte, src []uint64, width int) {
	mask := uint64(1)<<width - 1
	var acc uint64
	pending, j := 0, 0
	for _, c := range src {
		if j == len(dst) {
			return
		}
		acc = acc<<width | (c & mask)
		pending += width
		for pending >= 8 && j < len(dst) {
			pending -= 8
			dst[j] = byte(acc >> pending)
			j++
		}
		acc &= uint64(1)<<pending - 1
	}
}
