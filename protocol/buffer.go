package protocol

// Buffer accumulates bytes read from nsqd and hands them back out one frame
// at a time. It is not safe for concurrent use, it belongs to a single
// connection.
type Buffer struct {
	data []byte
	off  int

	maxFrameSize int
}

func NewBuffer(maxFrameSize int) *Buffer {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	return &Buffer{maxFrameSize: maxFrameSize}
}

// Write appends p to the buffer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.off > 0 && b.off == len(b.data) {
		// Everything has been consumed, start again from the front
		b.data = b.data[:0]
		b.off = 0
	} else if b.off > cap(b.data)/2 {
		// Slide the unconsumed tail down rather than growing forever
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}

	b.data = append(b.data, p...)
	return len(p), nil
}

// Next decodes the frame at the front of the buffer without consuming it.
// The returned int is the number of bytes to pass to Consume once the frame
// has been handled.
func (b *Buffer) Next() (Frame, int, error) {
	return DecodeFrame(b.data[b.off:], b.maxFrameSize)
}

// Consume discards n bytes from the front of the buffer.
func (b *Buffer) Consume(n int) {
	if n > b.Len() {
		n = b.Len()
	}

	b.off += n
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Bytes returns the unconsumed bytes. They alias the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}
