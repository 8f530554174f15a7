package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is a periodic unit of work with a minimum re-run interval. Tasks
// run to completion on the scheduler goroutine; nothing preempts them.
type Task struct {
	name     string
	interval time.Duration
	nextRun  time.Time
	run      func(now time.Time)
}

func NewTask(name string, interval time.Duration, run func(now time.Time)) *Task {
	return &Task{name: name, interval: interval, run: run}
}

func (t *Task) Name() string {
	return t.name
}

func (t *Task) Due(now time.Time) bool {
	return !now.Before(t.nextRun)
}

// Run executes the task and schedules the next eligible run at
// now+interval. Late ticks are absorbed, not corrected: a tardy run does
// not pull the following one earlier.
func (t *Task) Run(now time.Time) {
	t.run(now)
	t.nextRun = now.Add(t.interval)
}

// Group is a collection of tasks polled together, in registration order.
// Dynamic groups are mutated by the connectivity manager between task
// runs; there is only one thread of control, so no locking.
type Group struct {
	name  string
	tasks []*Task
}

func NewGroup(name string, tasks ...*Task) *Group {
	return &Group{name: name, tasks: tasks}
}

func (g *Group) Name() string {
	return g.name
}

func (g *Group) Add(t *Task) {
	g.tasks = append(g.tasks, t)
}

// Clear empties the group. A poll already iterating finishes its snapshot
// of the member list; the group runs nothing on subsequent ticks.
func (g *Group) Clear() {
	g.tasks = nil
}

func (g *Group) Len() int {
	return len(g.tasks)
}

// Poll runs every due member synchronously, one after another.
func (g *Group) Poll(now time.Time) {
	for _, t := range g.tasks {
		if t.Due(now) {
			t.Run(now)
		}
	}
}

// Scheduler drives the outer loop: every tick it polls the base group
// (sensors, actuators, autopilot, connectivity watcher) and then whichever
// dynamic group the connectivity manager reports active, if any.
type Scheduler struct {
	tick   time.Duration
	base   *Group
	active func() *Group
}

func New(tick time.Duration, base *Group, active func() *Group) *Scheduler {
	return &Scheduler{tick: tick, base: base, active: active}
}

func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("tick", s.tick).Msg("Starting scheduler loop")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler loop stopped")
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick is one pass over all registered tasks. Exported so tests and the
// bootstrap can drive the loop with a synthetic clock.
func (s *Scheduler) Tick(now time.Time) {
	s.base.Poll(now)
	if g := s.active(); g != nil {
		g.Poll(now)
	}
}
