package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	log "github.com/sirupsen/logrus"

	"fanctl-backend/internal/model"
	"fanctl-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is one fan status transition to announce.
type Job struct {
	FloorID string
	FanID   string
	FanName string
	Status  model.FanStatus
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Job
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, queueSize),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.WithField("worker", id).Debug("Notification worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.sendNotificationsForJob(ctx, job)
		case <-ctx.Done():
			log.WithField("worker", id).Debug("Notification worker shutting down")
			return
		}
	}
}

// Dispatch queues a job without blocking. The job is dropped when the
// queue is full.
func (wp *WorkerPool) Dispatch(job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	default:
		log.WithFields(log.Fields{"floor_id": job.FloorID, "fan_id": job.FanID}).Warn("Notification queue full, dropping job")
		return false
	}
}

// NotifyStatusChange queues a notification for a fan that switched on or off.
func (wp *WorkerPool) NotifyStatusChange(fan model.Fan) {
	wp.Dispatch(Job{FloorID: fan.FloorID, FanID: fan.ID, FanName: fan.Name, Status: fan.Status})
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// sendNotificationsForJob pushes the transition to every subscriber of the floor.
func (wp *WorkerPool) sendNotificationsForJob(ctx context.Context, job Job) {
	logger := log.WithFields(log.Fields{"floor_id": job.FloorID, "fan_id": job.FanID})

	subscriptions, err := wp.store.SubscriptionsForFloor(ctx, job.FloorID)
	if err != nil {
		logger.WithError(err).Error("Error fetching subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	floorLabel := job.FloorID
	if floor, err := wp.store.GetFloor(ctx, job.FloorID); err != nil {
		logger.WithError(err).Warn("Error fetching floor")
	} else if floor.Name != "" {
		floorLabel = floor.Name
	}

	fanLabel := job.FanName
	if fanLabel == "" {
		fanLabel = job.FanID
	}

	logger.WithField("subscriptions", len(subscriptions)).Info("Sending fan status notifications")
	message := fmt.Sprintf("%s on %s switched %s", fanLabel, floorLabel, job.Status)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.WithError(err).WithField("endpoint", sub.Endpoint).Error("Error sending notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.WithField("endpoint", sub.Endpoint).Info("Subscription expired, deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.WithError(err).WithField("endpoint", sub.Endpoint).Error("Failed to delete expired subscription")
		}
	}
}
