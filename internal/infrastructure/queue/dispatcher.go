package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/melkam/therapy-api/internal/api/metrics"
	"github.com/melkam/therapy-api/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// MailDispatcher delivers notifications on a fixed set of workers, sharded by
// recipient so one user's emails arrive in the order they were queued
// (verification before welcome). Delivery failures are logged and counted,
// never propagated: by the time a job is queued the state it announces is
// already persisted.
type MailDispatcher struct {
	workers []chan ports.MailJob
	mailer  ports.Mailer
	log     zerolog.Logger
}

// NewMailDispatcher creates a dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewMailDispatcher(numWorkers int, mailer ports.Mailer, log zerolog.Logger) *MailDispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &MailDispatcher{
		workers: make([]chan ports.MailJob, numWorkers),
		mailer:  mailer,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.MailJob, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *MailDispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands a notification to the worker responsible for its recipient.
// When the worker's buffer is full the job is dropped and logged rather than
// blocking the request path.
func (d *MailDispatcher) Enqueue(job ports.MailJob) {
	idx := d.shardIndex(job.To)
	select {
	case d.workers[idx] <- job:
		metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.EmailsSentTotal.WithLabelValues(string(job.Kind), "dropped").Inc()
		d.log.Error().Str("to", job.To).Str("kind", string(job.Kind)).Msg("mail queue full, notification dropped")
	}
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *MailDispatcher) shardIndex(to string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(to))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *MailDispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.MailJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			d.deliver(ctx, id, job)
			metrics.MailQueueDepth.WithLabelValues(strconv.Itoa(id)).Set(float64(len(ch)))
		}
	}
}

func (d *MailDispatcher) deliver(ctx context.Context, workerID int, job ports.MailJob) {
	var err error
	switch job.Kind {
	case ports.MailVerification:
		err = d.mailer.SendVerificationEmail(ctx, job.To, job.OTP, job.Name)
	case ports.MailWelcome:
		err = d.mailer.SendWelcomeEmail(ctx, job.To, job.Name)
	case ports.MailPasswordReset:
		err = d.mailer.SendPasswordResetEmail(ctx, job.To, job.OTP, job.Name)
	default:
		d.log.Error().Str("kind", string(job.Kind)).Msg("unknown mail kind")
		return
	}

	if err != nil {
		metrics.EmailsSentTotal.WithLabelValues(string(job.Kind), "error").Inc()
		d.log.Error().Err(err).
			Str("to", job.To).
			Str("kind", string(job.Kind)).
			Int("worker_id", workerID).
			Msg("notification delivery failed")
		return
	}

	metrics.EmailsSentTotal.WithLabelValues(string(job.Kind), "ok").Inc()
}
