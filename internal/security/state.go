package security

import (
	"sync"
	"time"

	"github.com/RideMatch1/neuraxon-viz/internal/ratelimit"
)

// State holds everything the gate remembers about clients. It is created
// once per process and shared by every request.
type State struct {
	requests *ratelimit.Limiter

	mu      sync.Mutex
	blocked map[string]time.Time
	daily   map[string]spend
	monthly map[string]spend
}

type spend struct {
	period string
	total  float64
}

func NewState(perMinute, perHour, perDay int) *State {
	return &State{
		requests: ratelimit.New(ratelimit.Windows(perMinute, perHour, perDay)),
		blocked:  map[string]time.Time{},
		daily:    map[string]spend{},
		monthly:  map[string]spend{},
	}
}

func (s *State) block(client string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocked[client]; !ok {
		s.blocked[client] = at
	}
}

func (s *State) isBlocked(client string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocked[client]
	return ok
}

// addCost adds cost to the client's running totals for the day and month of
// now, resetting a total when its period has changed.
func (s *State) addCost(client string, cost float64, now time.Time) (day, month float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.daily[client]
	if p := now.Format(time.DateOnly); d.period != p {
		d = spend{period: p}
	}
	d.total += cost
	s.daily[client] = d

	m := s.monthly[client]
	if p := now.Format("2006-01"); m.period != p {
		m = spend{period: p}
	}
	m.total += cost
	s.monthly[client] = m

	return d.total, m.total
}

// Stats is a point-in-time view of the gate for the stats endpoint.
type Stats struct {
	BlockedClients int     `json:"blocked_clients"`
	ActiveClients  int     `json:"active_clients"`
	CostToday      float64 `json:"cost_today"`
}

func (s *State) stats(now time.Time) Stats {
	active := s.requests.Clients()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{BlockedClients: len(s.blocked), ActiveClients: active}
	today := now.Format(time.DateOnly)
	for _, d := range s.daily {
		if d.period == today {
			st.CostToday += d.total
		}
	}
	return st
}
