package iclock

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// UnknownSN — сентинел «терминал не назвался»; такие в реестр не попадают.
const UnknownSN = "UNKNOWN"

// ErrQueueFull — защитный потолок очереди команд на устройство.
var ErrQueueFull = errors.New("command queue full")

// Device — снимок записи реестра (liveness терминала).
type Device struct {
	SerialNumber string    `json:"serial_number"`
	Status       string    `json:"status"`
	LastSeen     time.Time `json:"last_seen"`
	LastTable    string    `json:"last_table"`
	LastCommand  string    `json:"last_command"`
}

// Command — одна инструкция, ждущая опроса терминала. После Dequeue очередь
// её больше не знает: доставка at-least-once, подтверждений нет.
type Command struct {
	SN       string    `json:"sn"`
	Text     string    `json:"text"`
	QueuedAt time.Time `json:"queued_at"`
}

// deviceState — запись реестра + её очередь. У каждой свой мьютекс, чтобы
// медленный терминал не тормозил остальных (keyed locking).
type deviceState struct {
	mu    sync.Mutex
	dev   Device
	queue []Command
}

// Registry — процессный реестр терминалов и очереди исходящих команд.
// Явно создаваемый объект, не глобальный синглтон: в тестах живут несколько
// изолированных экземпляров.
type Registry struct {
	mu       sync.RWMutex
	bysn     map[string]*deviceState
	queueCap int
	now      func() time.Time
}

func NewRegistry(queueCap int) *Registry {
	if queueCap <= 0 {
		queueCap = 1000
	}
	return &Registry{
		bysn:     make(map[string]*deviceState),
		queueCap: queueCap,
		now:      time.Now,
	}
}

// get создаёт запись при первом обращении. Лукап O(1).
func (r *Registry) get(sn string) *deviceState {
	r.mu.RLock()
	st, ok := r.bysn[sn]
	r.mu.RUnlock()
	if ok {
		return st
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok = r.bysn[sn]; ok {
		return st
	}
	st = &deviceState{dev: Device{SerialNumber: sn}}
	r.bysn[sn] = st
	return st
}

// Touch — идемпотентный upsert: любой запрос терминала делает его online
// и двигает last-seen. Сентинел не регистрируем.
func (r *Registry) Touch(sn, table, command string) {
	if sn == "" || sn == UnknownSN {
		return
	}
	st := r.get(sn)
	st.mu.Lock()
	st.dev.Status = "online"
	st.dev.LastSeen = r.now()
	st.dev.LastTable = table
	st.dev.LastCommand = command
	st.mu.Unlock()
}

// Devices — снимок реестра, свежие первыми.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	states := make([]*deviceState, 0, len(r.bysn))
	for _, st := range r.bysn {
		states = append(states, st)
	}
	r.mu.RUnlock()

	out := make([]Device, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, st.dev)
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// Enqueue — в хвост FIFO устройства; очередь создаётся при первом использовании.
func (r *Registry) Enqueue(sn, text string) error {
	if sn == "" || sn == UnknownSN {
		return errors.New("serial number required")
	}
	st := r.get(sn)
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.queue) >= r.queueCap {
		return ErrQueueFull
	}
	st.queue = append(st.queue, Command{SN: sn, Text: text, QueuedAt: r.now()})
	return nil
}

// Dequeue — деструктивный pop головы; false = нечего отдавать (не ошибка).
// Push и pop по одному устройству взаимно исключаются одним мьютексом, так
// что дубликатов и потерь нет.
func (r *Registry) Dequeue(sn string) (Command, bool) {
	r.mu.RLock()
	st, ok := r.bysn[sn]
	r.mu.RUnlock()
	if !ok {
		return Command{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.queue) == 0 {
		return Command{}, false
	}
	cmd := st.queue[0]
	st.queue = st.queue[1:]
	return cmd, true
}

// Peek — читающая интроспекция очереди для операторских тулов.
func (r *Registry) Peek(sn string) []Command {
	r.mu.RLock()
	st, ok := r.bysn[sn]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Command, len(st.queue))
	copy(out, st.queue)
	return out
}
