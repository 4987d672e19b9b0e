package chat

import "errors"

// Error kinds returned by SubmitTurn. Match them with errors.Is.
var (
	ErrValidation           = errors.New("invalid input")
	ErrTurnInProgress       = errors.New("a turn is already in progress for this conversation")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrRetrieval            = errors.New("retrieval failed")
	ErrCompletion           = errors.New("completion failed")
	ErrPersistence          = errors.New("persistence failed")
)

// TurnError is the single error value a failed turn returns. Kind is one of
// the Err* sentinels; Err is the underlying cause, if any.
type TurnError struct {
	Kind error
	Err  error
}

func (e *TurnError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *TurnError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var (
	errEmptyTurn       = errors.New("a turn needs text or an attachment")
	errEmptyAttachment = errors.New("an attachment needs a name or text")
)

func turnError(kind, err error) *TurnError {
	return &TurnError{Kind: kind, Err: err}
}

// KindName returns a short label for err's kind, or "" when err is not a
// TurnError.
func KindName(err error) string {
	var te *TurnError
	if !errors.As(err, &te) {
		return ""
	}
	switch te.Kind {
	case ErrValidation:
		return "validation"
	case ErrTurnInProgress:
		return "turn_in_progress"
	case ErrConversationNotFound:
		return "conversation_not_found"
	case ErrRetrieval:
		return "retrieval"
	case ErrCompletion:
		return "completion"
	case ErrPersistence:
		return "persistence"
	}
	return "unknown"
}
