package profile

import (
	"sync"
)

// MemoryFeed is an in-process Feed. Writers call Put, Delete and Fail; each
// subscriber receives the changes in order on its own goroutine.
type MemoryFeed struct {
	mu   sync.Mutex
	docs map[string]*Profile
	subs map[string]map[*mailbox]struct{}
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		docs: map[string]*Profile{},
		subs: map[string]map[*mailbox]struct{}{},
	}
}

func (f *MemoryFeed) Subscribe(uid string, onUpdate func(*Profile), onError func(error)) func() {
	mb := newMailbox(onUpdate, onError)
	f.mu.Lock()
	if f.subs[uid] == nil {
		f.subs[uid] = map[*mailbox]struct{}{}
	}
	f.subs[uid][mb] = struct{}{}
	mb.pushUpdate(f.docs[uid].Clone())
	f.mu.Unlock()
	go mb.run()

	return func() {
		f.mu.Lock()
		delete(f.subs[uid], mb)
		if len(f.subs[uid]) == 0 {
			delete(f.subs, uid)
		}
		f.mu.Unlock()
		mb.close()
	}
}

// Put stores p under uid and notifies subscribers.
func (f *MemoryFeed) Put(uid string, p *Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[uid] = p.Clone()
	for mb := range f.subs[uid] {
		doc := p.Clone()
		mb.pushUpdate(doc)
	}
}

// Delete removes the document; subscribers receive the not-exists signal.
func (f *MemoryFeed) Delete(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, uid)
	for mb := range f.subs[uid] {
		mb.pushUpdate(nil)
	}
}

// Fail delivers err to every subscriber of uid.
func (f *MemoryFeed) Fail(uid string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for mb := range f.subs[uid] {
		mb.pushError(err)
	}
}

// Get returns a copy of the stored document, or nil.
func (f *MemoryFeed) Get(uid string) *Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[uid].Clone()
}

// Subscribers returns the number of open subscriptions for uid.
func (f *MemoryFeed) Subscribers(uid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[uid])
}

// mailbox is an unbounded ordered queue drained by one goroutine.
type mailbox struct {
	mu       sync.Mutex
	queue    []func()
	wake     chan struct{}
	done     chan struct{}
	once     sync.Once
	onUpdate func(*Profile)
	onError  func(error)
}

func newMailbox(onUpdate func(*Profile), onError func(error)) *mailbox {
	return &mailbox{
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		onUpdate: onUpdate,
		onError:  onError,
	}
}

func (m *mailbox) push(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) pushUpdate(p *Profile) {
	m.push(func() {
		if m.onUpdate != nil {
			m.onUpdate(p)
		}
	})
}

func (m *mailbox) pushError(err error) {
	m.push(func() {
		if m.onError != nil {
			m.onError(err)
		}
	})
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}
		m.mu.Lock()
		batch := m.queue
		m.queue = nil
		m.mu.Unlock()
		for _, fn := range batch {
			select {
			case <-m.done:
				return
			default:
			}
			fn()
		}
	}
}

func (m *mailbox) close() {
	m.once.Do(func() { close(m.done) })
}
