package protection

// Outcome is the pipeline's overall verdict, naming the gate that rejected
// the intent (if any), for ExecEvent(exec_protection_reject) audit records.
type Outcome struct {
	Pass   bool
	Gate   string
	Result Result
}

// Pipeline runs an ordered list of gates, short-circuiting on the first
// failure (spec.md §4.7).
type Pipeline struct {
	gates []Gate
}

// NewPipeline constructs a Pipeline from gates, in evaluation order.
func NewPipeline(gates ...Gate) *Pipeline {
	return &Pipeline{gates: gates}
}

// Run evaluates every gate in order, stopping at the first rejection.
func (p *Pipeline) Run(ctx Context) Outcome {
	for _, g := range p.gates {
		result := g.Check(ctx)
		if !result.Pass {
			return Outcome{Pass: false, Gate: g.Name(), Result: result}
		}
	}
	return Outcome{Pass: true}
}
