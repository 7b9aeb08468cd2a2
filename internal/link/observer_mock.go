package link

import "sync"

// RecordingObserver implements Observer and records everything it receives.
// It is safe for concurrent use.
type RecordingObserver struct {
	mu        sync.Mutex
	results   []*FetchResult
	err       error
	completed bool
}

func NewRecordingObserver() *RecordingObserver { return &RecordingObserver{} }

func (r *RecordingObserver) Next(res *FetchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *RecordingObserver) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *RecordingObserver) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = true
}

// Results returns a snapshot of received values.
func (r *RecordingObserver) Results() []*FetchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*FetchResult, len(r.results))
	copy(out, r.results)
	return out
}

func (r *RecordingObserver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *RecordingObserver) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Subject is a manually driven Observable source for tests: each Subscribe
// registers an observer the test can push into with Next, Error and
// Complete.
type Subject struct {
	mu         sync.Mutex
	observers  []Observer
	subscribes int
	teardowns  int
}

func NewSubject() *Subject { return &Subject{} }

// Observable returns a stream bound to the subject.
func (s *Subject) Observable() *Observable {
	return New(func(obs Observer) func() {
		s.mu.Lock()
		s.observers = append(s.observers, obs)
		s.subscribes++
		s.mu.Unlock()
		return func() {
			s.mu.Lock()
			s.teardowns++
			s.mu.Unlock()
		}
	})
}

func (s *Subject) snapshot() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Observer(nil), s.observers...)
}

func (s *Subject) Next(r *FetchResult) {
	for _, o := range s.snapshot() {
		o.Next(r)
	}
}

func (s *Subject) Error(err error) {
	for _, o := range s.snapshot() {
		o.Error(err)
	}
}

func (s *Subject) Complete() {
	for _, o := range s.snapshot() {
		o.Complete()
	}
}

// Subscribes reports how many times the stream was subscribed.
func (s *Subject) Subscribes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes
}

// Teardowns reports how many subscriptions were torn down.
func (s *Subject) Teardowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardowns
}
