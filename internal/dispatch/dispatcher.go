// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"sync"
	"time"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/common/metrics"
	"agrimarket-onboarding/internal/models"
)

// AdminDirectory resolves the administrator set for review-queue broadcasts.
type AdminDirectory interface {
	ListAdmins(ctx context.Context) ([]*models.Account, error)
}

type task struct {
	taskType string
	run      func(ctx context.Context) error
}

// Dispatcher runs lifecycle side effects on a bounded queue of background
// workers. Enqueue never blocks and task failures never reach the request
// path; they are logged and counted.
type Dispatcher struct {
	queue       chan task
	workers     int
	taskTimeout time.Duration

	emailer  *Emailer
	notifier *Notifier
	indexer  *Indexer
	admins   AdminDirectory

	logger logger.Logger
	wg     sync.WaitGroup

	stopOnce sync.Once
}

type Options struct {
	QueueSize   int
	Workers     int
	TaskTimeout time.Duration
}

func New(opts Options, emailer *Emailer, notifier *Notifier, indexer *Indexer, admins AdminDirectory, log logger.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Second
	}
	return &Dispatcher{
		queue:       make(chan task, opts.QueueSize),
		workers:     opts.Workers,
		taskTimeout: opts.TaskTimeout,
		emailer:     emailer,
		notifier:    notifier,
		indexer:     indexer,
		admins:      admins,
		logger:      log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("dispatcher started", map[string]interface{}{
		"workers":   d.workers,
		"queueSize": cap(d.queue),
	})
}

// Stop closes the queue and waits for in-flight tasks to drain.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.queue {
		metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
		ctx, cancel := context.WithTimeout(context.Background(), d.taskTimeout)
		if err := t.run(ctx); err != nil {
			metrics.DispatchTasksFailed.WithLabelValues(t.taskType).Inc()
			d.logger.Error("dispatch task failed", map[string]interface{}{
				"taskType": t.taskType,
				"error":    err,
			})
		}
		cancel()
	}
}

func (d *Dispatcher) enqueue(taskType string, run func(ctx context.Context) error) {
	select {
	case d.queue <- task{taskType: taskType, run: run}:
		metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
	default:
		metrics.DispatchTasksFailed.WithLabelValues(taskType).Inc()
		d.logger.Warn("dispatch queue full, dropping task", map[string]interface{}{
			"taskType": taskType,
		})
	}
}

// ApplicationSubmitted fans out the post-submission side effects: applicant
// push and email, admin review-queue broadcast and search indexing.
func (d *Dispatcher) ApplicationSubmitted(app *models.Application, applicant *models.Account) {
	data := applicantData(app, applicant)

	d.enqueue("applicant-push", func(ctx context.Context) error {
		return d.notifier.Push(ctx, applicant, "applicant", TypeApplicationSubmitted, data)
	})
	d.enqueue("applicant-email", func(ctx context.Context) error {
		return d.emailer.Send(ctx, applicant, TypeApplicationSubmitted, data)
	})
	d.enqueue("admin-broadcast", func(ctx context.Context) error {
		return d.broadcastToAdmins(ctx, app, applicant)
	})
	d.enqueueIndex(app)
}

// ApplicationDecided fans out the post-decision side effects for the
// applicant and refreshes the search index.
func (d *Dispatcher) ApplicationDecided(app *models.Application, applicant *models.Account, decision string) {
	notificationType := "application_" + decision
	if _, ok := templates[notificationType]; !ok {
		d.logger.Warn("no template for decision", map[string]interface{}{
			"decision": decision,
		})
		return
	}

	data := applicantData(app, applicant)
	if app.Review != nil {
		data["rejectionReason"] = app.Review.RejectionReason
		data["suspensionReason"] = app.Review.SuspensionReason
	}

	d.enqueue("applicant-push", func(ctx context.Context) error {
		return d.notifier.Push(ctx, applicant, "applicant", notificationType, data)
	})
	d.enqueue("applicant-email", func(ctx context.Context) error {
		return d.emailer.Send(ctx, applicant, notificationType, data)
	})
	d.enqueueIndex(app)
}

func (d *Dispatcher) enqueueIndex(app *models.Application) {
	if d.indexer == nil {
		return
	}
	d.enqueue("search-index", func(ctx context.Context) error {
		return d.indexer.Index(ctx, app)
	})
}

func (d *Dispatcher) broadcastToAdmins(ctx context.Context, app *models.Application, applicant *models.Account) error {
	admins, err := d.admins.ListAdmins(ctx)
	if err != nil {
		return err
	}

	data := map[string]interface{}{
		"applicationId":   app.ID,
		"applicationType": string(app.Type),
		"version":         app.Version,
		"applicantName":   applicant.Name,
	}
	for _, admin := range admins {
		if err := d.notifier.Push(ctx, admin, "admin", TypeNewApplication, data); err != nil {
			// Keep going; one unreachable admin must not starve the rest.
			d.logger.Warn("admin broadcast failed for recipient", map[string]interface{}{
				"adminId": admin.ID,
				"error":   err,
			})
		}
	}
	return nil
}

func applicantData(app *models.Application, applicant *models.Account) map[string]interface{} {
	return map[string]interface{}{
		"applicationId":   app.ID,
		"applicationType": string(app.Type),
		"version":         app.Version,
		"recipientName":   applicant.Name,
	}
}
