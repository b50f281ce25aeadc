package counting

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cyclopcam/linecount/pkg/nn"
)

// Counts is a snapshot of the statistics aggregate.
// Total is always the sum of PerClass.
type Counts struct {
	PerClass [nn.NumVehicleClasses]int64
	Total    int64
}

func (c Counts) Get(class nn.VehicleClass) int64 {
	if !class.Valid() {
		return 0
	}
	return c.PerClass[class]
}

// Map returns the counts keyed by class name, plus "total"
func (c Counts) Map() map[string]int64 {
	m := map[string]int64{}
	for _, class := range nn.AllVehicleClasses {
		m[class.String()] = c.PerClass[class]
	}
	m["total"] = c.Total
	return m
}

// SYNC-COUNTS-JSON
func (c Counts) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

func (c *Counts) UnmarshalJSON(b []byte) error {
	m := map[string]int64{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*c = Counts{}
	for name, v := range m {
		if name == "total" {
			continue
		}
		class, ok := nn.ParseVehicleClass(name)
		if !ok {
			return fmt.Errorf("Unknown vehicle class '%v' in counts", name)
		}
		c.PerClass[class] = v
		c.Total += v
	}
	return nil
}

// Report is the key-value text export, one class per line, and then the total
func (c Counts) Report() string {
	sb := strings.Builder{}
	for _, class := range nn.AllVehicleClasses {
		fmt.Fprintf(&sb, "%v: %v\n", class, c.PerClass[class])
	}
	fmt.Fprintf(&sb, "total: %v\n", c.Total)
	return sb.String()
}

func (c Counts) WriteReport(w io.Writer) error {
	_, err := io.WriteString(w, c.Report())
	return err
}

// ReportFilename is the name under which a report produced at time t is saved
func ReportFilename(t time.Time) string {
	return "vehicle_statistics_" + t.Format("20060102_150405") + ".txt"
}

// Stats is the statistics aggregate, which is safe to read while frames are being processed.
type Stats struct {
	lock       sync.RWMutex
	counts     Counts
	lastUpdate time.Time
}

// Snapshot returns the current counts, and the time at which they last changed
func (s *Stats) Snapshot() (Counts, time.Time) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.counts, s.lastUpdate
}

func (s *Stats) increment(class nn.VehicleClass) {
	s.lock.Lock()
	s.counts.PerClass[class]++
	s.counts.Total++
	s.lastUpdate = time.Now()
	s.lock.Unlock()
}

func (s *Stats) reset() {
	s.lock.Lock()
	s.counts = Counts{}
	s.lastUpdate = time.Now()
	s.lock.Unlock()
}
