package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"activityhub/internal/dto"
	"activityhub/internal/mailer"
	"activityhub/internal/rabbit"
	"activityhub/internal/repo"
)

type Reader struct {
	RMQ    *rabbit.Client
	repo   repo.Repository
	smtp   mailer.Config
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, repo repo.Repository, smtp mailer.Config) *Reader {
	return &Reader{
		RMQ:  rmq,
		repo: repo,
		smtp: smtp,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("Notification reader started")

	go func() {
		defer close(r.done)

		if err := r.RMQ.Consume(func(body []byte) error {
			return r.handleMessage(cctx, body)
		}); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("Notification reader stopped by context")
	}()
}

// handleMessage processes one notification message. Malformed payloads are
// logged and dropped rather than returned as errors: redelivery cannot fix
// them and would loop the same message forever.
func (r *Reader) handleMessage(ctx context.Context, body []byte) error {
	var msg dto.RegistrationNotifyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zlog.Logger.Error().
			Err(err).
			Msgf("Dropping malformed message: %s", string(body))
		return nil
	}

	zlog.Logger.Info().
		Str("user_id", msg.UserID).
		Str("kind", msg.Kind).
		Msg("Received notification message")

	user, err := r.repo.GetUserByID(ctx, msg.UserID)
	if err != nil {
		zlog.Logger.Error().
			Err(err).
			Str("user_id", msg.UserID).
			Msg("Failed to get user from DB in worker")
		return nil
	}

	// Resolve titles; events deleted since the message was queued
	// are dropped from the mail, and a fully stale message is
	// swallowed.
	var titles []string
	for _, eventID := range msg.EventIDs {
		event, err := r.repo.GetEventByID(ctx, eventID)
		if err != nil {
			zlog.Logger.Warn().
				Err(err).
				Str("event_id", eventID).
				Msg("Failed to get event from DB in worker")
			continue
		}
		titles = append(titles, event.Title)
	}
	if len(titles) == 0 {
		zlog.Logger.Info().
			Str("user_id", msg.UserID).
			Msg("No events left to notify about, skipping email")
		return nil
	}

	if err := mailer.SendNotificationEmail(
		&zlog.Logger,
		r.smtp,
		user.Email,
		user.Name,
		msg.Kind,
		titles,
	); err != nil {
		zlog.Logger.Warn().
			Err(err).
			Msg("Failed to send notification e-mail")
	}

	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
