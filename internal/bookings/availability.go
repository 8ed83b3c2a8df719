package bookings

import (
	"iter"
	"sort"
	"time"

	"github.com/antonbillionaire/staffix/internal/business"
)

// planner answers "is this staff member free for this service at start"
// against one snapshot of time-off and bookings. The availability search
// and booking validation share it so a listed slot is always bookable.
type planner struct {
	biz      *business.Business
	service  business.Service
	staff    []business.Staff
	timeOff  map[string][]business.TimeOff
	bookings map[string][]Booking
	now      time.Time
	step     time.Duration
}

func newPlanner(biz *business.Business, svc business.Service, staff []business.Staff, offs []business.TimeOff, booked []Booking, now time.Time, step time.Duration) *planner {
	p := &planner{
		biz:      biz,
		service:  svc,
		staff:    staff,
		timeOff:  make(map[string][]business.TimeOff),
		bookings: make(map[string][]Booking),
		now:      now,
		step:     step,
	}
	for _, off := range offs {
		p.timeOff[off.StaffID] = append(p.timeOff[off.StaffID], off)
	}
	for _, b := range booked {
		if b.Blocks() {
			p.bookings[b.StaffID] = append(p.bookings[b.StaffID], b)
		}
	}
	return p
}

// withinHours checks the static part: future start, fully inside the
// business open interval of the start's local date.
func (p *planner) withinHours(start time.Time) bool {
	if !start.After(p.now) {
		return false
	}
	end := start.Add(p.service.Duration())
	local := p.biz.Local(start)
	open, close, ok := p.biz.OpenInterval(local)
	if !ok {
		return false
	}
	return !start.Before(open) && !end.After(close)
}

// free checks time-off and existing bookings for one staff member.
func (p *planner) free(staffID string, start time.Time) bool {
	end := start.Add(p.service.Duration())
	blockedUntil := end.Add(p.biz.Buffer())
	for _, off := range p.timeOff[staffID] {
		if overlaps(start, end, off.Start, off.End) {
			return false
		}
	}
	for _, b := range p.bookings[staffID] {
		if overlaps(start, blockedUntil, b.Start, b.BlockedUntil) {
			return false
		}
	}
	return true
}

// slots yields free slots day by day, ordered by start time and then by
// staff position. from and to are local calendar dates, both inclusive.
func (p *planner) slots(from, to time.Time) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		duration := p.service.Duration()
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			open, close, ok := p.biz.OpenInterval(day)
			if !ok {
				continue
			}
			var daySlots []Slot
			for _, st := range p.staff {
				for start := open; !start.Add(duration).After(close); start = start.Add(p.step) {
					if p.withinHours(start) && p.free(st.ID, start) {
						daySlots = append(daySlots, Slot{
							StaffID:   st.ID,
							StaffName: st.Name,
							Start:     start,
							End:       start.Add(duration),
						})
					}
				}
			}
			// Staff were visited in position order, so a stable sort on
			// start keeps that order for ties.
			sort.SliceStable(daySlots, func(i, j int) bool {
				return daySlots[i].Start.Before(daySlots[j].Start)
			})
			for _, s := range daySlots {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// Collect materialises up to limit slots from seq. limit <= 0 means all.
func Collect(seq iter.Seq[Slot], limit int) []Slot {
	var out []Slot
	for s := range seq {
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
