package link

import "sync"

// Observer receives the values of an Observable.
type Observer interface {
	Next(*FetchResult)
	Error(error)
	Complete()
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	OnNext     func(*FetchResult)
	OnError    func(error)
	OnComplete func()
}

func (f ObserverFuncs) Next(r *FetchResult) {
	if f.OnNext != nil {
		f.OnNext(r)
	}
}

func (f ObserverFuncs) Error(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

func (f ObserverFuncs) Complete() {
	if f.OnComplete != nil {
		f.OnComplete()
	}
}

// Observable is a lazy stream of FetchResults.
type Observable struct {
	subscribe func(Observer) func()
}

// New creates an Observable from a producer. The producer runs on every
// Subscribe and may return a nil teardown.
func New(subscribe func(Observer) (teardown func())) *Observable {
	return &Observable{subscribe: subscribe}
}

// Subscribe starts the producer with a guarded observer.
func (o *Observable) Subscribe(obs Observer) *Subscription {
	s := &Subscription{observer: obs}
	s.install(o.subscribe(s))
	return s
}

// Of emits results in order and completes.
func Of(results ...*FetchResult) *Observable {
	return New(func(obs Observer) func() {
		for _, r := range results {
			obs.Next(r)
		}
		obs.Complete()
		return nil
	})
}

// Fail emits err immediately.
func Fail(err error) *Observable {
	return New(func(obs Observer) func() {
		obs.Error(err)
		return nil
	})
}

// Subscription is the handle returned by Subscribe. It is also the guarded
// Observer handed to the producer.
type Subscription struct {
	observer Observer

	emit sync.Mutex // serializes calls into observer

	mu       sync.Mutex
	closed   bool
	teardown func()
}

func (s *Subscription) Next(r *FetchResult) {
	s.emit.Lock()
	defer s.emit.Unlock()
	if s.Closed() {
		return
	}
	s.observer.Next(r)
}

func (s *Subscription) Error(err error) {
	s.emit.Lock()
	if !s.close() {
		s.emit.Unlock()
		return
	}
	s.observer.Error(err)
	s.emit.Unlock()
	s.cleanup()
}

func (s *Subscription) Complete() {
	s.emit.Lock()
	if !s.close() {
		s.emit.Unlock()
		return
	}
	s.observer.Complete()
	s.emit.Unlock()
	s.cleanup()
}

// Unsubscribe stops delivery and runs the teardown. Only the first call has
// an effect. It may be called from inside the observer's callbacks.
func (s *Subscription) Unsubscribe() {
	if s.close() {
		s.cleanup()
	}
}

// Closed reports whether the subscription has terminated.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *Subscription) cleanup() {
	s.mu.Lock()
	fn := s.teardown
	s.teardown = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// install registers the producer's teardown. A producer that already
// terminated has it run immediately.
func (s *Subscription) install(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.teardown = fn
	s.mu.Unlock()
}
