package metis

// Handler executes one element kind against an environment. Perform runs Prepare, Build
// and Complete in that order; a failing phase aborts the rest.
type Handler interface {
	Prepare(el *Element, env *Environment) error
	Build(el *Element, env *Environment) error
	Complete(el *Element, env *Environment) error
}

// Performer is implemented by handlers that drive their own phases, typically to run
// them inside a child scope.
type Performer interface {
	Perform(el *Element, env *Environment) error
}

// Phase names a step of handler execution.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhasePreparing
	PhaseBuilding
	PhaseCompleting
	PhaseDone
)

var phaseNames = [...]string{"not started", "preparing", "building", "completing", "done"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Perform executes h for el in env.
func Perform(h Handler, el *Element, env *Environment) error {
	if p, ok := h.(Performer); ok {
		return p.Perform(el, env)
	}
	_, err := runPhases(h, el, env)
	return err
}

// runPhases runs the three phases and reports the phase reached.
func runPhases(h Handler, el *Element, env *Environment) (Phase, error) {
	if err := h.Prepare(el, env); err != nil {
		return PhasePreparing, err
	}
	if err := h.Build(el, env); err != nil {
		return PhaseBuilding, err
	}
	if err := h.Complete(el, env); err != nil {
		return PhaseCompleting, err
	}
	return PhaseDone, nil
}

// BaseHandler provides the default phases: no-op Prepare and Complete, and a Build that
// performs every child in the same environment. Embed it and override what differs.
type BaseHandler struct{}

func (BaseHandler) Prepare(*Element, *Environment) error  { return nil }
func (BaseHandler) Complete(*Element, *Environment) error { return nil }

func (BaseHandler) Build(el *Element, env *Environment) error {
	return BuildChildren(el, env)
}

// BuildChildren performs each child of el in env, in document order.
func BuildChildren(el *Element, env *Environment) error {
	for _, child := range el.ChildNodes() {
		if err := child.PerformIn(env); err != nil {
			return err
		}
	}
	return nil
}

// HandlerFunc adapts a function to a Handler whose Build is the function.
type HandlerFunc func(el *Element, env *Environment) error

func (HandlerFunc) Prepare(*Element, *Environment) error  { return nil }
func (HandlerFunc) Complete(*Element, *Environment) error { return nil }

func (f HandlerFunc) Build(el *Element, env *Environment) error { return f(el, env) }
