package fleet

// Ring is a fixed-capacity line buffer that silently evicts the oldest entry
// when full. It is not safe for concurrent use; NodeRuntime guards it.
type Ring struct {
	buf   []string
	start int
	count int
}

// NewRing creates a ring holding at most capacity lines.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]string, capacity)}
}

// Append adds a line, evicting the oldest when at capacity.
func (r *Ring) Append(line string) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = line
		r.count++
		return
	}
	r.buf[r.start] = line
	r.start = (r.start + 1) % len(r.buf)
}

// All returns the buffered lines in arrival order, oldest first.
func (r *Ring) All() []string {
	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Last returns the most recent n lines in arrival order. If n exceeds the
// buffered count, all lines are returned.
func (r *Ring) Last(n int) []string {
	if n <= 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+r.count-n+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of buffered lines.
func (r *Ring) Len() int { return r.count }

// Cap returns the maximum number of lines the ring can hold.
func (r *Ring) Cap() int { return len(r.buf) }
