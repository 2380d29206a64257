package sched

// Scheduler polls a fixed list of tasks in round-robin order. It owns no
// tasks and never frees them; the caller guarantees every registered task
// outlives the scheduler.
//
// The model is single-threaded cooperative: RunTask and Start must be called
// from one goroutine only, and tasks suspend only by returning from Step.
type Scheduler struct {
	clock  Clock
	tasks  []Task
	cursor int
}

// New creates a Scheduler driven by clock, polling the given tasks.
func New(clock Clock, tasks ...Task) *Scheduler {
	return &Scheduler{clock: clock, tasks: tasks}
}

// AddTask appends a task to the polling list.
func (s *Scheduler) AddTask(t Task) {
	s.tasks = append(s.tasks, t)
}

// RemoveTask removes a task from the polling list. It must not be called
// from within the task's own Step.
func (s *Scheduler) RemoveTask(t Task) {
	for i, cur := range s.tasks {
		if cur == t {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			if s.cursor > i {
				s.cursor--
			}
			if s.cursor >= len(s.tasks) {
				s.cursor = 0
			}
			return
		}
	}
}

// RunTask examines the task under the cursor, runs it if its delay has
// elapsed, and advances the cursor. One call polls exactly one task.
func (s *Scheduler) RunTask() {
	if len(s.tasks) == 0 {
		return
	}
	task := s.tasks[s.cursor]

	tick := s.clock.Millis()
	if task.Delay() == 0 || !task.HasRun() || tick >= task.LastRun()+uint64(task.Delay()) {
		task.SetLastRun(tick)
		task.Step()
	}

	s.cursor++
	if s.cursor >= len(s.tasks) {
		s.cursor = 0
	}
}

// Start runs the scheduler loop forever.
func (s *Scheduler) Start() {
	for {
		s.RunTask()
	}
}
