package employee

// UpdatedEvent is published after an employee edit has been committed.
// RateAffecting marks edits that change how splits are derived for this
// employee; TeamLeadChanged additionally widens the recalculation to the
// employee's subordinates.
type UpdatedEvent struct {
	Employee        *Employee
	RateAffecting   bool
	TeamLeadChanged bool
}

type CreatedEvent struct {
	Employee *Employee
}
