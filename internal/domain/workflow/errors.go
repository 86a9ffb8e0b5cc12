package workflow

import "errors"

var (
	// ErrInstanceNotActive is returned when a transition is attempted on a
	// completed or cancelled instance.
	ErrInstanceNotActive = errors.New("approval instance is not active")

	// ErrActionNotAvailable is returned when the requested action has no
	// transition leaving the current state.
	ErrActionNotAvailable = errors.New("action is not available in the current state")

	// ErrTransitionBlocked is returned when the matching transition's guard
	// is not satisfied.
	ErrTransitionBlocked = errors.New("transition blocked by guard condition")

	// ErrCommentRequired is returned when the matching transition requires a
	// comment and none was supplied.
	ErrCommentRequired = errors.New("transition requires a comment")

	// ErrConfiguration is returned for graph defects the runtime refuses to
	// work around: duplicate (source, action) transitions or an auto-advance
	// chain exceeding its hop budget.
	ErrConfiguration = errors.New("workflow configuration error")

	// ErrConflict is returned when a concurrent transition committed first.
	// The caller should reload the instance and retry if still applicable.
	ErrConflict = errors.New("concurrent modification of approval instance")
)
