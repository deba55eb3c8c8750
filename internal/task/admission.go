package task

// AdmissionPolicy is consulted once per submission, synchronously and
// before queueing, with every operation admitted but not yet started.
//
// It returns the operation to admit: newOp itself, newOp after adding
// dependencies to it, or one of queued, in which case newOp mirrors that
// operation's outcome and never runs. Returning nil admits newOp.
type AdmissionPolicy func(newOp Operation, queued []Operation) Operation

// AdmitAll admits every operation unchanged.
func AdmitAll(newOp Operation, _ []Operation) Operation {
	return newOp
}

// CoalesceByType de-duplicates submissions: a new operation whose type is
// already queued rides along with the queued one. With no types given,
// every type is coalesced.
func CoalesceByType(types ...OperationType) AdmissionPolicy {
	match := typeSet(types)
	return func(newOp Operation, queued []Operation) Operation {
		if !match(newOp.Type()) {
			return newOp
		}
		for _, op := range queued {
			if op.Type() == newOp.Type() && !op.IsCancelled() && !op.IsFinished() {
				return op
			}
		}
		return newOp
	}
}

// SerializeByType makes a new operation depend on the most recently queued
// operation of the same type, so same-typed queued work runs one after the
// other. With strong set, a failure or cancellation propagates down the chain.
func SerializeByType(strong bool, types ...OperationType) AdmissionPolicy {
	match := typeSet(types)
	return func(newOp Operation, queued []Operation) Operation {
		if !match(newOp.Type()) {
			return newOp
		}
		var latest Operation
		for _, op := range queued {
			if op.Type() == newOp.Type() && !op.IsFinished() {
				latest = op
			}
		}
		if latest != nil {
			newOp.AddDependency(latest, strong)
		}
		return newOp
	}
}

// ChainPolicies runs policies in order. The first policy that picks an
// operation other than newOp wins; otherwise newOp is admitted with every
// dependency the policies attached.
func ChainPolicies(policies ...AdmissionPolicy) AdmissionPolicy {
	return func(newOp Operation, queued []Operation) Operation {
		for _, policy := range policies {
			if policy == nil {
				continue
			}
			if chosen := policy(newOp, queued); chosen != nil && chosen != newOp {
				return chosen
			}
		}
		return newOp
	}
}

func typeSet(types []OperationType) func(OperationType) bool {
	if len(types) == 0 {
		return func(OperationType) bool { return true }
	}
	set := make(map[OperationType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(t OperationType) bool {
		_, ok := set[t]
		return ok
	}
}
