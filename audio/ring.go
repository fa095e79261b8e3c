package audio

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"voxkey/encoder"
)

const (
	FrameMs      = 20
	FrameSamples = encoder.SampleRate * FrameMs / 1000 // 320
)

// Frame is one fixed-size block of mono PCM. Seq is the capture order,
// so gaps reveal frames dropped by the ring.
type Frame struct {
	Samples []int16
	Seq     uint64
}

// Ring is a fixed-capacity frame buffer between the capture callback and the
// segmenter. Push never waits for the consumer: when full, the oldest
// unconsumed frame is overwritten and counted as dropped.
type Ring struct {
	mu        sync.Mutex
	slots     [][]int16
	seqs      []uint64
	frameSize int
	head      uint64 // next write
	tail      uint64 // next read
	dropped   atomic.Uint64
}

func NewRing(capacity, frameSize int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	store := make([]int16, capacity*frameSize)
	slots := make([][]int16, capacity)
	for i := range slots {
		slots[i] = store[i*frameSize : (i+1)*frameSize : (i+1)*frameSize]
	}
	return &Ring{
		slots:     slots,
		seqs:      make([]uint64, capacity),
		frameSize: frameSize,
	}
}

// Push copies samples into the next slot. Short input is zero padded and
// long input truncated to the frame size.
func (r *Ring) Push(samples []int16) {
	r.mu.Lock()
	capacity := uint64(len(r.slots))
	if r.head-r.tail == capacity {
		r.tail++
		r.dropped.Add(1)
	}
	idx := r.head % capacity
	slot := r.slots[idx]
	n := copy(slot, samples)
	clear(slot[n:])
	r.seqs[idx] = r.head
	r.head++
	r.mu.Unlock()
}

// Drain appends copies of every frame pushed since the last drain to dst,
// oldest first.
func (r *Ring) Drain(dst []Frame) []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int(r.head - r.tail)
	if n == 0 {
		return dst
	}
	capacity := uint64(len(r.slots))
	block := make([]int16, n*r.frameSize)
	for i := 0; r.tail < r.head; i++ {
		idx := r.tail % capacity
		s := block[i*r.frameSize : (i+1)*r.frameSize : (i+1)*r.frameSize]
		copy(s, r.slots[idx])
		dst = append(dst, Frame{Samples: s, Seq: r.seqs[idx]})
		r.tail++
	}
	return dst
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.head - r.tail)
}

func (r *Ring) Dropped() uint64 { return r.dropped.Load() }

// Reset discards unconsumed frames. The dropped counter is kept.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.tail = r.head
	r.mu.Unlock()
}

// Framer cuts the driver's byte chunks (s16le mono) into FrameSamples-sized
// frames and pushes each complete one into the ring. It is meant to be
// called from the capture callback only.
type Framer struct {
	ring *Ring
	buf  []int16
	n    int
	odd  []byte
}

func NewFramer(r *Ring) *Framer {
	return &Framer{ring: r, buf: make([]int16, r.frameSize), odd: make([]byte, 0, 1)}
}

func (f *Framer) Write(data []byte) {
	if len(f.odd) == 1 && len(data) > 0 {
		f.put(int16(uint16(f.odd[0]) | uint16(data[0])<<8))
		f.odd = f.odd[:0]
		data = data[1:]
	}
	for len(data) >= 2 {
		f.put(int16(binary.LittleEndian.Uint16(data)))
		data = data[2:]
	}
	if len(data) == 1 {
		f.odd = append(f.odd, data[0])
	}
}

func (f *Framer) put(s int16) {
	f.buf[f.n] = s
	f.n++
	if f.n == len(f.buf) {
		f.ring.Push(f.buf)
		f.n = 0
	}
}

// Reset drops a partially filled frame.
func (f *Framer) Reset() {
	f.n = 0
	f.odd = f.odd[:0]
}
