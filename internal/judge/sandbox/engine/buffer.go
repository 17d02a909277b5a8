package engine

import (
	"bytes"
	"sync"
)

// boundedBuffer keeps the first max bytes written and counts the rest.
// onOverflow runs once, the first time a write crosses the cap.
type boundedBuffer struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	max        int64
	total      int64
	exceeded   bool
	onOverflow func()
}

func newBoundedBuffer(max int64, onOverflow func()) *boundedBuffer {
	return &boundedBuffer{max: max, onOverflow: onOverflow}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.total += int64(len(p))
	remaining := b.max - int64(b.buf.Len())
	if remaining > 0 {
		chunk := p
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		b.buf.Write(chunk)
	}
	fire := false
	if b.total > b.max && !b.exceeded {
		b.exceeded = true
		fire = b.onOverflow != nil
	}
	b.mu.Unlock()
	if fire {
		b.onOverflow()
	}
	// Report the full length so the copier keeps draining the pipe.
	return len(p), nil
}

func (b *boundedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
