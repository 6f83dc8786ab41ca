package queue

// Command discriminates envelope handling in the commands worker.
type Command string

const (
	CommandExecute Command = "EXECUTE"
	CommandKill    Command = "KILL"
)

// Envelope is the only message shape crossing the asset/commands
// boundary. EXECUTE envelopes name a reporting function and its
// arguments; KILL tells the worker to drain and stop.
type Envelope struct {
	Command  Command        `json:"command"`
	Function string         `json:"function,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
}

// Queue is a buffered, uni-directional channel of envelopes. Each run
// owns exactly two: commands (strategies/analytics -> worker) and
// events (external -> strategies).
type Queue struct {
	ch chan Envelope
}

const defaultCapacity = 4096

func New() *Queue {
	return NewWithCapacity(defaultCapacity)
}

func NewWithCapacity(capacity int) *Queue {
	return &Queue{ch: make(chan Envelope, capacity)}
}

// Put blocks when the buffer is full. Buffers are sized so this only
// happens when the consumer has stalled.
func (q *Queue) Put(envelope Envelope) {
	q.ch <- envelope
}

// Get blocks until a message arrives or the queue closes.
func (q *Queue) Get() (Envelope, bool) {
	envelope, ok := <-q.ch
	return envelope, ok
}

// TryGet drains without blocking.
func (q *Queue) TryGet() (Envelope, bool) {
	select {
	case envelope, ok := <-q.ch:
		return envelope, ok
	default:
		return Envelope{}, false
	}
}

func (q *Queue) Close() {
	close(q.ch)
}

func (q *Queue) Len() int {
	return len(q.ch)
}
