package sessioncheck

// Handler receives the outcome of each classified check. Implementations are
// invoked from the engine's completion path and should return promptly.
type Handler interface {
	// InvalidSession is invoked when a check classifies as a failure. The
	// reason is one of the relay reason constants or a provider-surfaced
	// error code such as "login_required". requestCheckCount is the number
	// of requests dispatched so far by this instance.
	InvalidSession(reason string, requestCheckCount int)
}

// ClaimsHandler is an optional upgrade interface. When the handler passed to
// New implements it, SessionClaims is invoked with the full claim set of
// every successful check that carried claims.
type ClaimsHandler interface {
	SessionClaims(claims map[string]any, requestCheckCount int)
}

// InitialSuccessHandler is an optional upgrade interface. When implemented,
// InitialSessionSuccess is invoked exactly once: on the first success
// observed by the instance, regardless of how many successes follow.
type InitialSuccessHandler interface {
	InitialSessionSuccess()
}

// HandlerFuncs adapts loose functions to the handler interfaces. Only
// OnInvalidSession is required; nil funcs are skipped.
type HandlerFuncs struct {
	OnInvalidSession        func(reason string, requestCheckCount int)
	OnSessionClaims         func(claims map[string]any, requestCheckCount int)
	OnInitialSessionSuccess func()
}

var (
	_ Handler               = HandlerFuncs{}
	_ ClaimsHandler         = HandlerFuncs{}
	_ InitialSuccessHandler = HandlerFuncs{}
)

func (h HandlerFuncs) InvalidSession(reason string, requestCheckCount int) {
	if h.OnInvalidSession != nil {
		h.OnInvalidSession(reason, requestCheckCount)
	}
}

func (h HandlerFuncs) SessionClaims(claims map[string]any, requestCheckCount int) {
	if h.OnSessionClaims != nil {
		h.OnSessionClaims(claims, requestCheckCount)
	}
}

func (h HandlerFuncs) InitialSessionSuccess() {
	if h.OnInitialSessionSuccess != nil {
		h.OnInitialSessionSuccess()
	}
}
