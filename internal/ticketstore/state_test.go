package ticketstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/ticket-client/internal/domain"
)

func ticket(id int64, title string) domain.Ticket {
	return domain.Ticket{
		ID:       id,
		Title:    title,
		Status:   domain.TicketStatusOpen,
		Priority: domain.TicketPriorityMedium,
		Category: domain.TicketCategorySupport,
	}
}

func TestApply_TicketAddedPrepends(t *testing.T) {
	state := apply(State{}, ticketsReplaced{tickets: []domain.Ticket{ticket(2, "T2"), ticket(1, "T1")}})
	state = apply(state, ticketAdded{ticket: ticket(3, "Cannot login")})

	assert.Equal(t, []int64{3, 2, 1}, ids(state.Tickets))
	assert.False(t, state.Loading)
}

func TestApply_TicketUpdatedPatchesBothCopies(t *testing.T) {
	current := ticket(2, "T2")
	state := State{
		Tickets: []domain.Ticket{ticket(2, "T2"), ticket(1, "T1")},
		Current: &current,
	}

	updated := ticket(2, "T2")
	updated.Status = domain.TicketStatusResolved
	state = apply(state, ticketUpdated{ticket: updated})

	assert.Equal(t, domain.TicketStatusResolved, state.Tickets[0].Status)
	assert.Equal(t, domain.TicketStatusResolved, state.Current.Status)
	assert.Equal(t, domain.TicketStatusOpen, state.Tickets[1].Status)
}

func TestApply_TicketUpdatedLeavesOtherCurrentAlone(t *testing.T) {
	current := ticket(1, "T1")
	state := State{
		Tickets: []domain.Ticket{ticket(2, "T2"), ticket(1, "T1")},
		Current: &current,
	}

	updated := ticket(2, "T2")
	updated.Status = domain.TicketStatusClosed
	state = apply(state, ticketUpdated{ticket: updated})

	assert.Equal(t, domain.TicketStatusClosed, state.Tickets[0].Status)
	assert.Equal(t, domain.TicketStatusOpen, state.Current.Status)
	assert.Equal(t, int64(1), state.Current.ID)
}

func TestApply_CommentAddedOnlyToMatchingCurrent(t *testing.T) {
	current := ticket(5, "T5")
	state := State{Current: &current}

	state = apply(state, commentAdded{ticketID: 5, comment: domain.Comment{ID: 1, Content: "hello"}})
	assert.Len(t, state.Current.Comments, 1)

	// A comment for a ticket no longer being viewed is dropped.
	state = apply(state, commentAdded{ticketID: 6, comment: domain.Comment{ID: 2, Content: "stray"}})
	assert.Len(t, state.Current.Comments, 1)

	// And never backfilled into the list.
	assert.Empty(t, state.Tickets)
}

func TestApply_CommentAddedWithoutCurrentIsNoop(t *testing.T) {
	state := apply(State{}, commentAdded{ticketID: 1, comment: domain.Comment{ID: 1}})
	assert.Nil(t, state.Current)
}

func TestApply_ErrorAndReset(t *testing.T) {
	state := apply(State{Loading: true}, errorSet{message: "Request failed"})
	assert.Equal(t, "Request failed", state.Err)
	assert.False(t, state.Loading)

	state = apply(state, errorCleared{})
	assert.Empty(t, state.Err)

	state = apply(State{Tickets: []domain.Ticket{ticket(1, "T1")}}, reset{})
	assert.Equal(t, State{}, state)
}

func ids(tickets []domain.Ticket) []int64 {
	out := make([]int64, len(tickets))
	for i, ticket := range tickets {
		out[i] = ticket.ID
	}
	return out
}
