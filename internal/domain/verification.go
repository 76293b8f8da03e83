package domain

// VerificationOutcome is the verdict of the identity backend on a credential
type VerificationOutcome int

const (
	OutcomeValid VerificationOutcome = iota
	OutcomeInvalidCredential
	OutcomeNetworkError
)

func (o VerificationOutcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalidCredential:
		return "invalid_credential"
	case OutcomeNetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// VerificationResult represents the outcome of a /auth/me check
type VerificationResult struct {
	Outcome    VerificationOutcome
	StatusCode int
	UserID     string
	User       map[string]any
	// Degraded is set when a 404 was accepted because a user id is stored locally
	Degraded bool
	Err      error
}

func (r VerificationResult) Valid() bool {
	return r.Outcome == OutcomeValid
}

func (r VerificationResult) NetworkError() bool {
	return r.Outcome == OutcomeNetworkError
}

// GateState is the terminal state of a page load
type GateState string

const (
	GateProceed  GateState = "proceed"
	GateRedirect GateState = "redirect"
	GateSkip     GateState = "skip"
)

// GateDecision tells the caller what to do with a page load. The caller performs the redirect.
type GateDecision struct {
	State       GateState
	RedirectURL string
	// Verification is nil when the decision was reached without calling the backend
	Verification *VerificationResult
}

// SessionContext identifies one page load of one browser session
type SessionContext struct {
	SessionID string
	Path      string
}
