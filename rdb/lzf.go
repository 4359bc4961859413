package rdb

// Decompress expands an LZF block into exactly outLen bytes.
//
// A control byte below 32 copies the next ctrl+1 bytes literally. Anything
// else is a back-reference of length (ctrl>>5)+2, extended by one byte when
// the 3-bit length is 7, at distance ((ctrl&31)<<8 | next)+1 from the
// current output position.
func Decompress(in []byte, outLen int) ([]byte, error) {
	if outLen < 0 {
		return nil, corruptf("lzf: negative output length %d", outLen)
	}

	out := make([]byte, outLen)
	op, ip := 0, 0

	for ip < len(in) {
		ctrl := int(in[ip])
		ip++

		if ctrl < 32 {
			run := ctrl + 1
			if ip+run > len(in) {
				return nil, corruptf("lzf: literal run of %d overruns input", run)
			}
			if op+run > outLen {
				return nil, corruptf("lzf: literal run of %d overruns output", run)
			}
			copy(out[op:], in[ip:ip+run])
			op += run
			ip += run
			continue
		}

		length := ctrl >> 5
		if length == 7 {
			if ip >= len(in) {
				return nil, corruptf("lzf: missing extended length")
			}
			length += int(in[ip])
			ip++
		}
		length += 2

		if ip >= len(in) {
			return nil, corruptf("lzf: missing back-reference offset")
		}
		distance := (ctrl&31)<<8 | int(in[ip])
		ip++
		distance++

		if distance > op {
			return nil, corruptf("lzf: back-reference %d before start of output at %d", distance, op)
		}
		if op+length > outLen {
			return nil, corruptf("lzf: back-reference of %d overruns output", length)
		}

		// Byte by byte: source and destination may overlap.
		ref := op - distance
		for i := 0; i < length; i++ {
			out[op] = out[ref]
			op++
			ref++
		}
	}

	if op != outLen {
		return nil, corruptf("lzf: decompressed %d bytes, expected %d", op, outLen)
	}
	return out, nil
}
