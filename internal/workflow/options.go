package workflow

const (
	DefaultMaxPlanIterations = 1
	DefaultMaxStepNum        = 3
	DefaultRecursionLimit    = 25
	DefaultMaxStepAttempts   = 3
	DefaultMaxPlanEdits      = 3
)

// Options bounds a run. Zero values take the defaults above.
type Options struct {
	// MaxPlanIterations caps accepted plans per run.
	MaxPlanIterations int
	// MaxStepNum truncates every generated plan.
	MaxStepNum int
	// RecursionLimit caps node transitions within one invocation.
	RecursionLimit int
	// MaxStepAttempts caps empty results for the same step.
	MaxStepAttempts int
	// MaxPlanEdits caps EDIT_PLAN round trips. Negative disables the cap.
	MaxPlanEdits int
	// AutoAcceptPlan skips the suspension at the human feedback node.
	AutoAcceptPlan bool
	// CompatRouting sends steps of unknown type to the coder instead of
	// failing the run.
	CompatRouting bool
}

func DefaultOptions() Options {
	return Options{
		MaxPlanIterations: DefaultMaxPlanIterations,
		MaxStepNum:        DefaultMaxStepNum,
		RecursionLimit:    DefaultRecursionLimit,
		MaxStepAttempts:   DefaultMaxStepAttempts,
		MaxPlanEdits:      DefaultMaxPlanEdits,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxPlanIterations <= 0 {
		o.MaxPlanIterations = DefaultMaxPlanIterations
	}
	if o.MaxStepNum <= 0 {
		o.MaxStepNum = DefaultMaxStepNum
	}
	if o.RecursionLimit <= 0 {
		o.RecursionLimit = DefaultRecursionLimit
	}
	if o.MaxStepAttempts <= 0 {
		o.MaxStepAttempts = DefaultMaxStepAttempts
	}
	if o.MaxPlanEdits == 0 {
		o.MaxPlanEdits = DefaultMaxPlanEdits
	}
	return o
}
