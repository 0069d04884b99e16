package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fkhayef/bankroll/internal/metrics"
	"github.com/fkhayef/bankroll/internal/user"
)

// ErrChannelUnavailable is returned when no sender is registered for a channel
var ErrChannelUnavailable = errors.New("notification channel not available")

// Contacts resolves user ids to contact details for email delivery
type Contacts interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// DispatcherConfig tunes the background delivery pool
type DispatcherConfig struct {
	Workers int
	Timeout time.Duration
}

// Dispatcher delivers membership events across channels. SendInvite is
// synchronous so callers can count deliveries; the Notify* methods are fire
// and forget: they run on a bounded pool, outlive the request context and
// only log their failures.
type Dispatcher struct {
	feed     *Service
	contacts Contacts
	senders  map[Channel]Sender
	log      *zap.Logger
	metrics  *metrics.Metrics

	timeout time.Duration
	sem     chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher writing in-app notifications through feed
func NewDispatcher(feed *Service, cfg DispatcherConfig, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		feed:    feed,
		senders: make(map[Channel]Sender),
		log:     log,
		metrics: m,
		timeout: cfg.Timeout,
		sem:     make(chan struct{}, cfg.Workers),
	}
}

// Register installs the sender for an external channel
func (d *Dispatcher) Register(ch Channel, sender Sender) *Dispatcher {
	d.senders[ch] = sender
	return d
}

// WithContacts enables email delivery of user-targeted events
func (d *Dispatcher) WithContacts(contacts Contacts) *Dispatcher {
	d.contacts = contacts
	return d
}

// Wait blocks until all background deliveries have finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// SendInvite delivers an invitation to an outside recipient. For the in-app
// channel the recipient is a user id.
func (d *Dispatcher) SendInvite(ctx context.Context, ch Channel, recipient string, p Payload) error {
	p = withEventID(p)
	subject, body := renderInvite(p)

	var err error
	if ch == ChannelInApp {
		var recipientID int64
		recipientID, err = strconv.ParseInt(recipient, 10, 64)
		if err == nil {
			err = d.writeFeed(ctx, recipientID, body, p)
		}
	} else {
		err = d.send(ctx, ch, Message{To: recipient, Subject: subject, Body: body, EventID: p.EventID})
	}

	if err != nil {
		d.log.Warn("invitation delivery failed",
			zap.String("channel", string(ch)),
			zap.Int64("group_id", p.GroupID),
			zap.String("event_id", p.EventID),
			zap.Error(err),
		)
	}
	return err
}

// NotifyGroupInvite tells an existing user they were invited to a group
func (d *Dispatcher) NotifyGroupInvite(ctx context.Context, recipientID int64, p Payload) {
	d.notifyUsers(ctx, NotificationTypeGroupInvite, []int64{recipientID}, p)
}

// NotifyInviteAccepted tells the inviter their invitation was accepted
func (d *Dispatcher) NotifyInviteAccepted(ctx context.Context, inviterID int64, p Payload) {
	d.notifyUsers(ctx, NotificationTypeInviteAccepted, []int64{inviterID}, p)
}

// NotifyInviteDeclined tells the inviter their invitation was declined
func (d *Dispatcher) NotifyInviteDeclined(ctx context.Context, inviterID int64, p Payload) {
	d.notifyUsers(ctx, NotificationTypeInviteDeclined, []int64{inviterID}, p)
}

// NotifyJoinRequested tells the group's owner and admins about a join request
func (d *Dispatcher) NotifyJoinRequested(ctx context.Context, adminIDs []int64, p Payload) {
	d.notifyUsers(ctx, NotificationTypeJoinRequested, adminIDs, p)
}

// NotifyJoinResolved tells the requester how their join request ended
func (d *Dispatcher) NotifyJoinResolved(ctx context.Context, userID int64, approved bool, p Payload) {
	kind := NotificationTypeJoinRejected
	if approved {
		kind = NotificationTypeJoinApproved
	}
	d.notifyUsers(ctx, kind, []int64{userID}, p)
}

// NotifyMemberJoined tells the owner somebody joined a public group
func (d *Dispatcher) NotifyMemberJoined(ctx context.Context, ownerID int64, p Payload) {
	d.notifyUsers(ctx, NotificationTypeMemberJoined, []int64{ownerID}, p)
}

func (d *Dispatcher) notifyUsers(ctx context.Context, kind NotificationType, userIDs []int64, p Payload) {
	if len(userIDs) == 0 {
		return
	}
	p = withEventID(p)
	recipients := append([]int64(nil), userIDs...)

	d.goAsync(ctx, string(kind), func(ctx context.Context) error {
		var errs []error
		for _, id := range recipients {
			if err := d.deliverToUser(ctx, kind, id, p); err != nil {
				errs = append(errs, fmt.Errorf("user %d: %w", id, err))
			}
		}
		return errors.Join(errs...)
	})
}

// deliverToUser fans one event out to every channel the user has enabled
func (d *Dispatcher) deliverToUser(ctx context.Context, kind NotificationType, userID int64, p Payload) error {
	prefs, err := d.feed.GetPreferences(ctx, userID)
	if err != nil {
		return err
	}
	subject, body := renderEvent(kind, p)

	var errs []error
	if prefs.Allows(ChannelInApp) {
		if err := d.writeFeed(ctx, userID, body, p); err != nil {
			errs = append(errs, err)
		}
	}
	if _, ok := d.senders[ChannelPush]; ok && prefs.Allows(ChannelPush) {
		msg := Message{To: strconv.FormatInt(userID, 10), Subject: subject, Body: body, EventID: p.EventID}
		if err := d.send(ctx, ChannelPush, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if _, ok := d.senders[ChannelEmail]; ok && d.contacts != nil && prefs.Allows(ChannelEmail) {
		u, err := d.contacts.GetByID(ctx, userID)
		if err != nil {
			errs = append(errs, err)
		} else if u.Email != "" {
			msg := Message{To: u.Email, Subject: subject, Body: body, EventID: p.EventID}
			if err := d.send(ctx, ChannelEmail, msg); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, msg Message) error {
	sender, ok := d.senders[ch]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrChannelUnavailable, ch)
		d.metrics.Notification(string(ch), err)
		return err
	}
	err := sender.Send(ctx, msg)
	d.metrics.Notification(string(ch), err)
	return err
}

func (d *Dispatcher) writeFeed(ctx context.Context, recipientID int64, body string, p Payload) error {
	entry := &Entry{RecipientID: recipientID, GroupID: p.GroupID, Message: body}
	switch {
	case p.EntityType != "" && p.EntityID != 0:
		entry.Entity = &EntityRef{Type: p.EntityType, ID: p.EntityID}
	case p.GroupID != 0:
		entry.Entity = &EntityRef{Type: EntityGroup, ID: p.GroupID}
	}

	_, err := d.feed.Create(ctx, entry)
	d.metrics.Notification(string(ChannelInApp), err)
	return err
}

// goAsync runs fn on the worker pool with a context detached from the caller
// and bounded by the dispatcher timeout.
func (d *Dispatcher) goAsync(parent context.Context, name string, fn func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sem <- struct{}{}
		defer func() { <-d.sem }()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("notification panicked", zap.String("event", name), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			d.log.Warn("notification failed", zap.String("event", name), zap.Error(err))
		}
	}()
}

func withEventID(p Payload) Payload {
	if p.EventID == "" {
		p.EventID = uuid.NewString()
	}
	return p
}
