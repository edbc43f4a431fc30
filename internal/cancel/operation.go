package cancel

// Operation is the canonical way a long-running handler cooperates with
// cancellation: call Check() periodically (e.g. once per loop iteration)
// and it tests the signal every CheckInterval calls, returning a
// *Cancelled error the moment the signal is observed set. Close performs
// one final check, for the common `defer op.Close()` pattern.
type Operation struct {
	sig           *Signal
	checkInterval int
	count         int
	reason        func() string
}

// NewOperation returns an Operation polling sig every checkInterval calls
// to Check. checkInterval <= 0 is treated as 1 (check every call).
// reasonFn supplies the reason string for the Cancelled error it
// eventually returns; it may be nil.
func NewOperation(sig *Signal, checkInterval int, reasonFn func() string) *Operation {
	if checkInterval <= 0 {
		checkInterval = 1
	}
	return &Operation{sig: sig, checkInterval: checkInterval, reason: reasonFn}
}

// Check increments the internal counter and, on every checkInterval'th
// call, tests the signal. Returns a *Cancelled error the first time the
// signal is observed set.
func (op *Operation) Check() error {
	op.count++
	if op.count%op.checkInterval != 0 {
		return nil
	}
	return op.test()
}

// Close performs one final unconditional check, for use with defer at
// scope exit.
func (op *Operation) Close() error {
	return op.test()
}

func (op *Operation) test() error {
	if op.sig == nil || !op.sig.IsSet() {
		return nil
	}
	r := ""
	if op.reason != nil {
		r = op.reason()
	}
	return &Cancelled{Reason: r}
}
