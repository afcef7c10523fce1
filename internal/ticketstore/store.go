// Package ticketstore caches the ticket collection and a single
// detail record, mutated only through reducer events fed by the
// backend's responses.
package ticketstore

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apiclient "github.com/spec-kit/ticket-client/internal/api"
	"github.com/spec-kit/ticket-client/internal/api/dto"
	"github.com/spec-kit/ticket-client/internal/domain"
	"github.com/spec-kit/ticket-client/internal/events"
	"github.com/spec-kit/ticket-client/pkg/util"
)

// Session is the slice of the session store the ticket store depends
// on: the authenticated pipeline plus staleness signals.
type Session interface {
	Do(ctx context.Context, method, path string, body any) (*apiclient.Response, error)
	Generation() uint64
	Authenticated() bool
}

// Store holds ticket state and performs all backend access through
// the session's authenticated pipeline.
type Store struct {
	session    Session
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mu    sync.Mutex
	state State
	step  uint64
	// detailReq fences the in-flight detail fetch: a response whose
	// token is no longer current writes nothing.
	detailReq string
}

// New builds the store. When a dispatcher is provided the store
// resets itself whenever the session leaves the authenticated state,
// so a logout cannot strand loading flags or leak another session's
// tickets.
func New(session Session, dispatcher events.Dispatcher, logger *zap.Logger) *Store {
	s := &Store{
		session:    session,
		dispatcher: dispatcher,
		logger:     logger,
	}
	if dispatcher != nil {
		dispatcher.Subscribe(events.EventSessionChanged, func(ctx context.Context, _ events.Event) {
			if !session.Authenticated() {
				s.mu.Lock()
				s.state = apply(s.state, reset{})
				s.detailReq = ""
				s.mu.Unlock()
			}
		})
	}
	return s
}

// Snapshot returns a copy of the current ticket state. The slice and
// detail record are shallow copies; callers must not mutate tickets
// in place.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	state.Tickets = append([]domain.Ticket{}, s.state.Tickets...)
	if s.state.Current != nil {
		current := *s.state.Current
		state.Current = &current
	}
	return state
}

// FetchTickets replaces the list with the filtered server result set.
func (s *Store) FetchTickets(ctx context.Context, filters map[string]string) ([]domain.Ticket, *util.APIError) {
	return s.fetchList(ctx, "/tickets/"+apiclient.EncodeQuery(filters))
}

// MyTickets replaces the list with tickets the user opened.
func (s *Store) MyTickets(ctx context.Context) ([]domain.Ticket, *util.APIError) {
	return s.fetchList(ctx, "/tickets/my_tickets/")
}

// AssignedTickets replaces the list with tickets assigned to the
// user. Only meaningful for staff; authorization is the backend's
// call, not the store's.
func (s *Store) AssignedTickets(ctx context.Context) ([]domain.Ticket, *util.APIError) {
	return s.fetchList(ctx, "/tickets/assigned_to_me/")
}

func (s *Store) fetchList(ctx context.Context, path string) ([]domain.Ticket, *util.APIError) {
	gen := s.session.Generation()
	s.dispatch(ctx, loadingSet{loading: true}, events.EventTicketsChanged)

	var list dto.TicketList
	if apiErr := s.request(ctx, http.MethodGet, path, nil, &list); apiErr != nil {
		s.applyIfFresh(ctx, gen, errorSet{message: apiErr.Message}, events.EventTicketsChanged)
		return nil, apiErr
	}

	if !s.applyIfFresh(ctx, gen, ticketsReplaced{tickets: list.Results}, events.EventTicketsChanged) {
		s.logger.Debug("dropping stale ticket list", zap.String("path", path))
		return list.Results, nil
	}
	s.logger.Info("tickets fetched", zap.String("path", path), zap.Int("count", len(list.Results)))
	return list.Results, nil
}

// FetchTicket replaces the detail record wholesale. A response that
// arrives after the view moved on (ClearCurrent or a newer fetch) is
// dropped.
func (s *Store) FetchTicket(ctx context.Context, id int64) (*domain.Ticket, *util.APIError) {
	gen := s.session.Generation()
	token := uuid.NewString()
	s.mu.Lock()
	s.detailReq = token
	s.mu.Unlock()
	s.dispatch(ctx, loadingSet{loading: true}, events.EventCurrentTicketChanged)

	var ticket domain.Ticket
	if apiErr := s.request(ctx, http.MethodGet, ticketPath(id), nil, &ticket); apiErr != nil {
		s.applyIfFresh(ctx, gen, errorSet{message: apiErr.Message}, events.EventCurrentTicketChanged)
		return nil, apiErr
	}

	s.mu.Lock()
	fresh := s.detailReq == token && s.session.Generation() == gen
	if fresh {
		s.state = apply(s.state, currentReplaced{ticket: &ticket})
	}
	s.mu.Unlock()
	if !fresh {
		s.logger.Debug("dropping stale ticket detail", zap.Int64("ticket_id", id))
		return &ticket, nil
	}

	s.publish(ctx, events.EventCurrentTicketChanged)
	s.logger.Info("ticket fetched", zap.Int64("ticket_id", id))
	return &ticket, nil
}

// CreateTicket creates a ticket and prepends it to the list. The
// detail record is untouched.
func (s *Store) CreateTicket(ctx context.Context, req dto.CreateTicketRequest) (*domain.Ticket, *util.APIError) {
	gen := s.session.Generation()
	s.dispatch(ctx, loadingSet{loading: true}, events.EventTicketsChanged)

	var ticket domain.Ticket
	if apiErr := s.request(ctx, http.MethodPost, "/tickets/", req, &ticket); apiErr != nil {
		s.applyIfFresh(ctx, gen, errorSet{message: apiErr.Message}, events.EventTicketsChanged)
		return nil, apiErr
	}

	s.applyIfFresh(ctx, gen, ticketAdded{ticket: ticket}, events.EventTicketsChanged)
	s.logger.Info("ticket created", zap.Int64("ticket_id", ticket.ID), zap.String("title", ticket.Title))
	return &ticket, nil
}

// UpdateTicket patches a ticket and reflects the server's copy in the
// list and, when it is the one being viewed, the detail record — both
// in one reducer step.
func (s *Store) UpdateTicket(ctx context.Context, id int64, patch dto.UpdateTicketRequest) (*domain.Ticket, *util.APIError) {
	return s.patchTicket(ctx, ticketPath(id), patch, id)
}

// UpdateStatus changes a ticket's status with optional admin
// feedback. Staff-only on the backend.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status domain.TicketStatus, feedback string) (*domain.Ticket, *util.APIError) {
	req := dto.UpdateStatusRequest{Status: status, AdminFeedback: feedback}
	return s.patchTicket(ctx, ticketPath(id)+"update_status/", req, id)
}

func (s *Store) patchTicket(ctx context.Context, path string, body any, id int64) (*domain.Ticket, *util.APIError) {
	gen := s.session.Generation()

	var ticket domain.Ticket
	if apiErr := s.request(ctx, http.MethodPatch, path, body, &ticket); apiErr != nil {
		s.applyIfFresh(ctx, gen, errorSet{message: apiErr.Message}, events.EventTicketsChanged)
		s.logger.Warn("ticket update failed", zap.Int64("ticket_id", id), zap.String("error", apiErr.Message))
		return nil, apiErr
	}

	s.applyIfFresh(ctx, gen, ticketUpdated{ticket: ticket}, events.EventTicketsChanged)
	s.logger.Info("ticket updated", zap.Int64("ticket_id", ticket.ID), zap.String("status", string(ticket.Status)))
	return &ticket, nil
}

// AddComment appends a comment to the viewed ticket's thread. When
// the viewed ticket has changed by the time the server answers, the
// returned comment is not applied anywhere (no backfill into the
// list).
func (s *Store) AddComment(ctx context.Context, id int64, content string, isInternal bool) (*domain.Comment, *util.APIError) {
	gen := s.session.Generation()
	req := dto.AddCommentRequest{Content: content, IsInternal: isInternal}

	var comment domain.Comment
	if apiErr := s.request(ctx, http.MethodPost, ticketPath(id)+"add_comment/", req, &comment); apiErr != nil {
		s.applyIfFresh(ctx, gen, errorSet{message: apiErr.Message}, events.EventCurrentTicketChanged)
		s.logger.Warn("comment failed", zap.Int64("ticket_id", id), zap.String("error", apiErr.Message))
		return nil, apiErr
	}

	s.applyIfFresh(ctx, gen, commentAdded{ticketID: id, comment: comment}, events.EventCommentAdded)
	s.logger.Info("comment added", zap.Int64("ticket_id", id), zap.Int64("comment_id", comment.ID))
	return &comment, nil
}

// Stats returns staff-only aggregate counts. List state is untouched.
func (s *Store) Stats(ctx context.Context) (*domain.TicketStats, *util.APIError) {
	var stats domain.TicketStats
	if apiErr := s.request(ctx, http.MethodGet, "/tickets/stats/", nil, &stats); apiErr != nil {
		s.logger.Warn("stats fetch failed", zap.String("error", apiErr.Message))
		return nil, apiErr
	}
	return &stats, nil
}

// ClearError drops the stored error message.
func (s *Store) ClearError(ctx context.Context) {
	s.dispatch(ctx, errorCleared{}, events.EventTicketsChanged)
}

// ClearCurrent abandons the detail view and invalidates any in-flight
// detail fetch.
func (s *Store) ClearCurrent(ctx context.Context) {
	s.mu.Lock()
	s.detailReq = ""
	s.state = apply(s.state, currentReplaced{ticket: nil})
	s.mu.Unlock()
	s.publish(ctx, events.EventCurrentTicketChanged)
}

// request funnels every call through the session pipeline and
// normalizes failures; nothing escapes as a raw error.
func (s *Store) request(ctx context.Context, method, path string, body, out any) *util.APIError {
	resp, err := s.session.Do(ctx, method, path, body)
	if err != nil {
		return util.ToAPIError(err)
	}
	if apiErr := resp.Err(); apiErr != nil {
		return apiErr
	}
	if out != nil {
		if err := resp.Decode(out); err != nil {
			return util.NewNetworkError(err)
		}
	}
	return nil
}

// applyIfFresh applies the event only when the session generation
// still matches the one captured when the operation started. A result
// straddling a logout or re-login writes nothing.
func (s *Store) applyIfFresh(ctx context.Context, gen uint64, ev event, evType events.EventType) bool {
	s.mu.Lock()
	if s.session.Generation() != gen {
		s.mu.Unlock()
		return false
	}
	s.state = apply(s.state, ev)
	s.mu.Unlock()
	s.publish(ctx, evType)
	return true
}

func (s *Store) dispatch(ctx context.Context, ev event, evType events.EventType) {
	s.mu.Lock()
	s.state = apply(s.state, ev)
	s.mu.Unlock()
	s.publish(ctx, evType)
}

func (s *Store) publish(ctx context.Context, evType events.EventType) {
	if s.dispatcher == nil {
		return
	}
	s.mu.Lock()
	s.step++
	step := s.step
	s.mu.Unlock()
	s.dispatcher.Publish(ctx, events.Event{Type: evType, Generation: step})
}

func ticketPath(id int64) string {
	return fmt.Sprintf("/tickets/%d/", id)
}
