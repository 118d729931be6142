package worker

// lineBuffer accumulates raw stream bytes and emits complete
// newline-delimited frames. Partial reads are preserved across calls; the
// buffer only ever advances past extracted frames.
type lineBuffer struct {
	buf []byte
}

// Feed appends p and invokes emit once per complete line (without the
// trailing newline). Bytes after the last newline stay buffered.
func (lb *lineBuffer) Feed(p []byte, emit func(line string)) {
	lb.buf = append(lb.buf, p...)
	for {
		idx := indexByte(lb.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(lb.buf[:idx])
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		lb.buf = lb.buf[idx+1:]
		emit(line)
	}
}

// Flush emits any buffered partial line. Called when the stream closes so a
// final unterminated frame is not lost.
func (lb *lineBuffer) Flush(emit func(line string)) {
	if len(lb.buf) == 0 {
		return
	}
	line := string(lb.buf)
	lb.buf = lb.buf[:0]
	emit(line)
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}
