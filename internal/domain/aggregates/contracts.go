package aggregates

// Contract describes what one aggregate write locks and what it leaves true.
type Contract struct {
	Name string
	// LockOrder lists the tables whose rows a write locks, in acquisition order.
	// Aggregates that share a table must agree on the order.
	LockOrder []string
	// Invariants hold after every committed write.
	Invariants []string
}

// Aggregate is implemented by every write boundary.
type Aggregate interface {
	Contract() Contract
}

// LocksBefore reports whether a is locked ahead of b. Tables the contract does
// not lock report false.
func (c Contract) LocksBefore(a, b string) bool {
	ia, ib := -1, -1
	for i, t := range c.LockOrder {
		switch t {
		case a:
			ia = i
		case b:
			ib = i
		}
	}
	return ia >= 0 && ib >= 0 && ia < ib
}
