package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JournalEntry is one DM command and its outcome.
type JournalEntry struct {
	At        time.Time
	SessionID uint64
	IssuerIP  string
	Command   string
	Args      string
	OK        bool
	Message   string
}

// BatchWriter persists journal entries.
type BatchWriter interface {
	WriteBatch(ctx context.Context, entries []JournalEntry) error
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// WriteBatch inserts entries in a single transaction.
func (r *JournalRepo) WriteBatch(ctx context.Context, entries []JournalEntry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO command_journal (recorded_at, session_id, issuer_ip, command, args, ok, message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.At, int64(e.SessionID), e.IssuerIP, e.Command, e.Args, e.OK, e.Message,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Journal queues entries from the game loop and writes them in batches on
// its own goroutine. A nil *Journal accepts and discards everything.
type Journal struct {
	w        BatchWriter
	ch       chan JournalEntry
	batch    int
	interval time.Duration
	log      *zap.Logger

	wg   sync.WaitGroup
	once sync.Once
}

// NewJournal starts the writer goroutine. A nil w returns a nil Journal.
func NewJournal(w BatchWriter, queue int, interval time.Duration, log *zap.Logger) *Journal {
	if w == nil {
		return nil
	}
	if queue < 1 {
		queue = 256
	}
	if interval <= 0 {
		interval = time.Second
	}
	j := &Journal{
		w:        w,
		ch:       make(chan JournalEntry, queue),
		batch:    64,
		interval: interval,
		log:      log,
	}
	j.wg.Add(1)
	go j.run()
	return j
}

// Record enqueues e without blocking. Entries are dropped when the queue is
// full.
func (j *Journal) Record(e JournalEntry) {
	if j == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case j.ch <- e:
	default:
		j.log.Warn("指令日誌佇列已滿，丟棄", zap.String("command", e.Command))
	}
}

// Close flushes what is queued and stops the writer.
func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.once.Do(func() {
		close(j.ch)
		j.wg.Wait()
	})
}

func (j *Journal) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	pending := make([]JournalEntry, 0, j.batch)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.w.WriteBatch(ctx, pending); err != nil {
			j.log.Error("指令日誌寫入失敗", zap.Int("count", len(pending)), zap.Error(err))
		}
		pending = pending[:0]
	}

	for {
		select {
		case e, ok := <-j.ch:
			if !ok {
				flush()
				return
			}
			pending = append(pending, e)
			if len(pending) >= j.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
