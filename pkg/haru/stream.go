package haru

// Stream is the lazy sample sequence of one running measurement. It is a
// cooperative pull: the consumer drives iteration, there is no background
// buffering beyond the batch drained from the driver, and cancellation
// happens purely by the session leaving StateMeasuring (normally via
// StopMeasurement, possibly from another goroutine), observed at the top
// of the next poll iteration.
//
// The poll is a deliberate busy loop with no sleep: the acquisition path
// is latency-sensitive (4 ms nominal sample period) and the driver is
// expected to report buffered samples quickly.
type Stream struct {
	session *Session
	pending []Sample
}

// Next returns the next sample in arrival order. It blocks until the
// driver reports buffered samples and returns ok == false once the
// session is no longer measuring. Records the driver reports with a
// negative status are skipped as transient misses.
func (st *Stream) Next() (Sample, bool) {
	if len(st.pending) > 0 {
		return st.pop(), true
	}
	for {
		handle, measuring := st.session.measuringHandle()
		if !measuring {
			return Sample{}, false
		}
		n := st.session.transport.ReceivedCount(handle)
		if n <= 0 {
			continue
		}
		for i := 0; i < n; i++ {
			var rec Sample
			if st.session.transport.Receive(handle, &rec) >= 0 {
				st.pending = append(st.pending, rec)
			}
		}
		if len(st.pending) > 0 {
			return st.pop(), true
		}
	}
}

func (st *Stream) pop() Sample {
	rec := st.pending[0]
	st.pending = st.pending[1:]
	return rec
}
