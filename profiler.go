package raywave

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profiler accumulates CPU scope timings and counters for the preparation
// stages. Display order follows first BeginScope call.
type Profiler struct {
	scopes     map[string]time.Duration
	startTimes map[string]time.Time
	counts     map[string]int
	order      []string
}

func NewProfiler() *Profiler {
	return &Profiler{
		scopes:     make(map[string]time.Duration),
		startTimes: make(map[string]time.Time),
		counts:     make(map[string]int),
	}
}

func (p *Profiler) BeginScope(name string) {
	p.startTimes[name] = time.Now()
	for _, n := range p.order {
		if n == name {
			return
		}
	}
	p.order = append(p.order, name)
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.startTimes[name]; ok {
		p.scopes[name] = time.Since(start)
	}
}

func (p *Profiler) SetCount(name string, count int) {
	p.counts[name] = count
}

func (p *Profiler) Reset() {
	for k := range p.scopes {
		p.scopes[k] = 0
	}
}

func (p *Profiler) StatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.order {
		ms := float64(p.scopes[name].Microseconds()) / 1000.0
		sb.WriteString(fmt.Sprintf("  %-18s: %.2f ms\n", name, ms))
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-18s: %d\n", k, p.counts[k]))
	}
	return sb.String()
}
