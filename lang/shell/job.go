package shell

import (
	"fmt"
	"io"
	"sync"
	"syscall"

	"golang.org/x/exp/slices"
	"golang.org/x/sys/unix"
)

// ProcState is the lifecycle state of one process of a job.
type ProcState uint8

//nolint:revive
const (
	ProcRunning ProcState = iota
	ProcStopped
	ProcTerminated
)

// proc is one process entry of a job.
type proc struct {
	pid        int
	state      ProcState
	exitStatus int
}

// ShellJob is a job entry: an ordered list of processes, or a
// goroutine-backed shell evaluation for forked shell code.
type ShellJob struct {
	mu       sync.Mutex
	id       int
	ownerPid int
	procs    []proc
	detached bool
	done     chan struct{}
	status   int
	finished bool
}

// NewShellJob creates a job backed by a forked shell evaluation.
func (t *JobTable) NewShellJob() *ShellJob {
	return &ShellJob{
		ownerPid: unix.Getpid(),
		procs:    []proc{{pid: unix.Getpid(), state: ProcRunning}},
		done:     make(chan struct{}),
	}
}

// NewProcJob creates a job over already-started processes.
func (t *JobTable) NewProcJob(pids []int) *ShellJob {
	j := &ShellJob{ownerPid: unix.Getpid(), done: make(chan struct{})}
	for _, pid := range pids {
		j.procs = append(j.procs, proc{pid: pid, state: ProcRunning})
	}
	return j
}

// finish marks the whole job terminated with the given status.
func (j *ShellJob) finish(status int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return
	}
	j.finished = true
	j.status = status
	for i := range j.procs {
		j.procs[i].state = ProcTerminated
		j.procs[i].exitStatus = status
	}
	close(j.done)
}

// Wait blocks until the job terminates and returns its status.
func (j *ShellJob) Wait() int {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Kill delivers the signal to every live process of the job.
func (j *ShellJob) Kill(sig unix.Signal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var first error
	for _, p := range j.procs {
		if p.state == ProcTerminated || p.pid == unix.Getpid() {
			continue
		}
		if err := unix.Kill(p.pid, sig); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Detach marks the job as detached. It does not remove the job from a
// JobTable; JobTable.Detach does that.
func (j *ShellJob) Detach() {
	j.mu.Lock()
	j.detached = true
	j.mu.Unlock()
}

// Size returns the initial pipeline length.
func (j *ShellJob) Size() int { return len(j.procs) }

// Pid returns the pid of the i-th process.
func (j *ShellJob) Pid(i int) int { return j.procs[i].pid }

// Running reports whether any process of the job still runs.
func (j *ShellJob) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, p := range j.procs {
		if p.state == ProcRunning {
			return true
		}
	}
	return false
}

// JobID returns the table id, 0 when detached.
func (j *ShellJob) JobID() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.id
}

// JobTable is the id-ordered list of live jobs with a cached latest
// entry.
type JobTable struct {
	mu     sync.Mutex
	jobs   []*ShellJob
	latest *ShellJob
}

// NewJobTable creates an empty table.
func NewJobTable() *JobTable { return &JobTable{} }

// Attach assigns the smallest unused positive id and inserts the job in
// id order.
func (t *JobTable) Attach(j *ShellJob) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := 1
	for _, e := range t.jobs {
		if e.id == id {
			id++
			continue
		}
		break
	}
	j.mu.Lock()
	j.id = id
	j.mu.Unlock()

	i, _ := slices.BinarySearchFunc(t.jobs, j, func(a, b *ShellJob) int {
		return a.id - b.id
	})
	t.jobs = slices.Insert(t.jobs, i, j)
	t.latest = j
	return id
}

// Detach removes the job with the id, returning it.
func (t *JobTable) Detach(id int) *ShellJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.jobs {
		if e.id == id {
			t.jobs = slices.Delete(t.jobs, i, i+1)
			if t.latest == e {
				t.latest = nil
				if len(t.jobs) > 0 {
					t.latest = t.jobs[len(t.jobs)-1]
				}
			}
			e.mu.Lock()
			e.id = 0
			e.mu.Unlock()
			return e
		}
	}
	return nil
}

// FindEntry locates a job by id with a binary search.
func (t *JobTable) FindEntry(id int) *ShellJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := slices.BinarySearchFunc(t.jobs, &ShellJob{id: id}, func(a, b *ShellJob) int {
		return a.id - b.id
	})
	if !ok {
		return nil
	}
	return t.jobs[i]
}

// Latest returns the most recently attached job.
func (t *JobTable) Latest() *ShellJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// UpdateStatus reaps terminated external processes without blocking and
// drops fully terminated jobs from the table.
func (t *JobTable) UpdateStatus() {
	t.mu.Lock()
	jobs := append([]*ShellJob(nil), t.jobs...)
	t.mu.Unlock()

	for _, j := range jobs {
		j.mu.Lock()
		allDone := true
		for i := range j.procs {
			p := &j.procs[i]
			if p.state == ProcTerminated || p.pid == unix.Getpid() {
				if p.state != ProcTerminated {
					allDone = false
				}
				continue
			}
			var ws unix.WaitStatus
			pid, err := unix.Wait4(p.pid, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
			switch {
			case err != nil || pid == 0:
				if ws.Stopped() {
					p.state = ProcStopped
				}
				if p.state == ProcRunning || p.state == ProcStopped {
					allDone = false
				}
			case ws.Stopped():
				p.state = ProcStopped
				allDone = false
			default:
				p.state = ProcTerminated
				if ws.Signaled() {
					p.exitStatus = 128 + int(ws.Signal())
				} else {
					p.exitStatus = ws.ExitStatus()
				}
			}
		}
		id := j.id
		j.mu.Unlock()
		if allDone && id > 0 {
			t.Detach(id)
		}
	}
}

// WaitAndDetach blocks on the job, detaches it from the table and returns
// its status.
func (t *JobTable) WaitAndDetach(j *ShellJob) int {
	st := j.Wait()
	if id := j.JobID(); id > 0 {
		t.Detach(id)
	}
	return st
}

// Show writes the job listing.
func (t *JobTable) Show(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		state := "Running"
		if !j.Running() {
			state = "Done"
		}
		fmt.Fprintf(w, "[%d]  %s\n", j.id, state)
	}
}

// procSysAttr builds the process attributes for an external command: with
// job control enabled each pipeline runs in its own process group.
func procSysAttr(monitor bool, pgid int) *syscall.SysProcAttr {
	if !monitor {
		return nil
	}
	return &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
}
