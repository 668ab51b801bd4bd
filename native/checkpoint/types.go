package checkpoint

// Schedule fires checkpoints at fixed timestamps. A one-shot schedule has a
// zero period; a recurring one decrements Remaining on every firing. The
// removable flag is fixed at creation; corporate actions only pin schedules
// created non-removable. Refs counts those pins.
type Schedule struct {
	ID            uint64
	NextAt        uint64
	Period        uint64
	Remaining     uint32
	Refs          uint32
	UserRemovable bool
}

// Removable reports whether the schedule may be removed by its owner.
func (s *Schedule) Removable() bool { return s != nil && s.UserRemovable && s.Refs == 0 }

// Exhausted reports whether the schedule has no further firings.
func (s *Schedule) Exhausted() bool { return s != nil && s.Remaining == 0 }

// Clone returns a copy of the schedule.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
