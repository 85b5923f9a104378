package logger

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// Publisher ships a digest batch. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type CollectionConfig struct {
	Interval  time.Duration // flush period
	MaxKeys   int           // distinct entries that force an early flush
	Topic     string
	Source    string // message key, usually the run or host id
	Publisher Publisher
}

// DigestEntry counts repeats of one warn/error line between flushes.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated warn/error lines into counted digests so a
// failing backend produces one message per interval instead of one per tick.
type LogCollector struct {
	cfg     CollectionConfig
	mu      sync.Mutex
	entries map[uint64]*DigestEntry
	closed  bool
	flushes chan []DigestEntry
	stop    chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		entries: make(map[uint64]*DigestEntry),
		flushes: make(chan []DigestEntry, 8),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	if c.cfg.Interval <= 0 {
		c.cfg.Interval = 30 * time.Second
	}
	if c.cfg.MaxKeys <= 0 {
		c.cfg.MaxKeys = 100
	}
	c.wg.Add(2)
	go c.tick()
	go c.send()
	return c
}

// AddLog records one line. Identity is level, message, caller and the field keys;
// field values come from the first occurrence.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	key := digestKey(level, message, caller, fields)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.entries[key] = &DigestEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(c.entries) >= c.cfg.MaxKeys {
		c.flushLocked()
	}
}

// Pending reports how many distinct entries await the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *LogCollector) tick() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.flushLocked()
			c.closed = true
			c.mu.Unlock()
			close(c.flushes)
			return
		}
	}
}

// flushLocked hands the batch to the sender. A full queue drops the batch.
func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 {
		return
	}
	batch := make([]DigestEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	c.entries = make(map[uint64]*DigestEntry)
	select {
	case c.flushes <- batch:
	default:
	}
}

func (c *LogCollector) send() {
	defer c.wg.Done()
	for batch := range c.flushes {
		if c.cfg.Publisher == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = c.cfg.Publisher.Publish(ctx, c.cfg.Topic, []byte(c.cfg.Source), batch)
		cancel()
	}
}

// Close flushes what is buffered and waits for the sender.
func (c *LogCollector) Close() {
	close(c.stop)
	c.wg.Wait()
}

func digestKey(level, message, caller string, fields map[string]interface{}) uint64 {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, s := range append([]string{level, message, caller}, keys...) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
