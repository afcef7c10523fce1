package ticketstore

import "github.com/spec-kit/ticket-client/internal/domain"

// State is the client-side cache of server-owned tickets: the list in
// server order plus at most one detail record.
type State struct {
	Tickets []domain.Ticket
	Current *domain.Ticket
	Loading bool
	Err     string
}

// event is a tagged transition input for the reducer.
type event interface {
	isEvent()
}

type loadingSet struct {
	loading bool
}

// ticketsReplaced swaps the list wholesale with a server result set.
type ticketsReplaced struct {
	tickets []domain.Ticket
}

// ticketAdded prepends a freshly created ticket (most-recent-first).
type ticketAdded struct {
	ticket domain.Ticket
}

// ticketUpdated patches the list entry and, when the ids match, the
// detail record in the same step so both views stay consistent.
type ticketUpdated struct {
	ticket domain.Ticket
}

// currentReplaced swaps the detail record wholesale.
type currentReplaced struct {
	ticket *domain.Ticket
}

// commentAdded appends into the detail record's thread, and only
// there. A comment for a ticket no longer being viewed is dropped.
type commentAdded struct {
	ticketID int64
	comment  domain.Comment
}

type errorSet struct {
	message string
}

type errorCleared struct{}

// reset drops all session-scoped state.
type reset struct{}

func (loadingSet) isEvent()      {}
func (ticketsReplaced) isEvent() {}
func (ticketAdded) isEvent()     {}
func (ticketUpdated) isEvent()   {}
func (currentReplaced) isEvent() {}
func (commentAdded) isEvent()    {}
func (errorSet) isEvent()        {}
func (errorCleared) isEvent()    {}
func (reset) isEvent()           {}

// apply is the pure state-transition function.
func apply(state State, ev event) State {
	switch ev := ev.(type) {
	case loadingSet:
		state.Loading = ev.loading
		return state

	case ticketsReplaced:
		state.Tickets = ev.tickets
		state.Loading = false
		return state

	case ticketAdded:
		tickets := make([]domain.Ticket, 0, len(state.Tickets)+1)
		tickets = append(tickets, ev.ticket)
		tickets = append(tickets, state.Tickets...)
		state.Tickets = tickets
		state.Loading = false
		return state

	case ticketUpdated:
		tickets := make([]domain.Ticket, len(state.Tickets))
		for i, ticket := range state.Tickets {
			if ticket.ID == ev.ticket.ID {
				tickets[i] = ev.ticket
			} else {
				tickets[i] = ticket
			}
		}
		state.Tickets = tickets
		if state.Current != nil && state.Current.ID == ev.ticket.ID {
			updated := ev.ticket
			state.Current = &updated
		}
		return state

	case currentReplaced:
		state.Current = ev.ticket
		state.Loading = false
		return state

	case commentAdded:
		if state.Current == nil || state.Current.ID != ev.ticketID {
			return state
		}
		current := *state.Current
		current.Comments = append(append([]domain.Comment{}, current.Comments...), ev.comment)
		state.Current = &current
		return state

	case errorSet:
		state.Err = ev.message
		state.Loading = false
		return state

	case errorCleared:
		state.Err = ""
		return state

	case reset:
		return State{}
	}
	return state
}
