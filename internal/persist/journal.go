package persist

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Journal batches visits and writes them from its own goroutine so the
// estimation worker never waits on the database.
type Journal struct {
	repo     *VisitRepo
	ch       chan Visit
	interval time.Duration
	log      *zap.Logger
}

func NewJournal(repo *VisitRepo, interval time.Duration, log *zap.Logger) *Journal {
	return &Journal{
		repo:     repo,
		ch:       make(chan Visit, 256),
		interval: interval,
		log:      log,
	}
}

// Add queues a visit. It drops the visit when the queue is full.
func (j *Journal) Add(v Visit) {
	select {
	case j.ch <- v:
	default:
		j.log.Debug("足跡佇列已滿，丟棄", zap.Int("room", v.RoomID))
	}
}

// Run flushes queued visits every interval until ctx is done, then flushes
// what is left.
func (j *Journal) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	var batch []Visit
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := j.repo.Record(ctx, batch); err != nil {
			j.log.Warn("足跡寫入失敗", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}
	for {
		select {
		case v := <-j.ch:
			batch = append(batch, v)
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
		drain:
			for {
				select {
				case v := <-j.ch:
					batch = append(batch, v)
				default:
					break drain
				}
			}
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(final)
			cancel()
			return
		}
	}
}
