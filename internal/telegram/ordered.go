package telegram

import "sync"

// senderQueues runs jobs of one sender one at a time in submission order.
// Jobs of distinct senders run in parallel.
type senderQueues struct {
	mu      sync.Mutex
	pending map[int64][]func() // present while a drain goroutine runs
	wg      sync.WaitGroup
}

func newSenderQueues() *senderQueues {
	return &senderQueues{pending: make(map[int64][]func())}
}

func (q *senderQueues) submit(sender int64, job func()) {
	q.mu.Lock()
	if jobs, running := q.pending[sender]; running {
		q.pending[sender] = append(jobs, job)
		q.mu.Unlock()
		return
	}
	q.pending[sender] = nil
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drain(sender, job)
}

func (q *senderQueues) drain(sender int64, job func()) {
	defer q.wg.Done()
	for {
		job()

		q.mu.Lock()
		jobs := q.pending[sender]
		if len(jobs) == 0 {
			delete(q.pending, sender)
			q.mu.Unlock()
			return
		}
		job = jobs[0]
		q.pending[sender] = jobs[1:]
		q.mu.Unlock()
	}
}

// wait blocks until every submitted job has finished.
func (q *senderQueues) wait() {
	q.wg.Wait()
}
