package ticketstore

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apiclient "github.com/spec-kit/ticket-client/internal/api"
	"github.com/spec-kit/ticket-client/internal/api/dto"
	"github.com/spec-kit/ticket-client/internal/domain"
	"github.com/spec-kit/ticket-client/internal/events"
)

func createReq(title string) dto.CreateTicketRequest {
	return dto.CreateTicketRequest{
		Title:       title,
		Description: "something broke badly",
		Category:    domain.TicketCategoryBug,
		Priority:    domain.TicketPriorityHigh,
	}
}

func updateReqTitle(title string) dto.UpdateTicketRequest {
	return dto.UpdateTicketRequest{Title: &title}
}

// fakeSession scripts pipeline responses without a network.
type fakeSession struct {
	mu     sync.Mutex
	handle func(method, path string, body any) (*apiclient.Response, error)
	gen    uint64
	auth   bool
}

func (f *fakeSession) Do(_ context.Context, method, path string, body any) (*apiclient.Response, error) {
	return f.handle(method, path, body)
}

func (f *fakeSession) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

func (f *fakeSession) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth
}

func respJSON(t *testing.T, status int, v any) *apiclient.Response {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return &apiclient.Response{StatusCode: status, Body: body}
}

func newTestStore(t *testing.T, handle func(method, path string, body any) (*apiclient.Response, error)) (*Store, *fakeSession, events.Dispatcher) {
	t.Helper()
	session := &fakeSession{handle: handle, gen: 1, auth: true}
	dispatcher := events.NewInMemoryDispatcher()
	return New(session, dispatcher, zap.NewNop()), session, dispatcher
}

func TestFetchTickets_ReplacesListWholesale(t *testing.T) {
	store, _, _ := newTestStore(t, func(method, path string, _ any) (*apiclient.Response, error) {
		assert.Equal(t, http.MethodGet, method)
		assert.Equal(t, "/tickets/?status=open", path)
		return respJSON(t, http.StatusOK, []domain.Ticket{ticket(2, "T2"), ticket(1, "T1")}), nil
	})

	tickets, apiErr := store.FetchTickets(context.Background(), map[string]string{"status": "open"})
	require.Nil(t, apiErr)
	assert.Equal(t, []int64{2, 1}, ids(tickets))

	state := store.Snapshot()
	assert.Equal(t, []int64{2, 1}, ids(state.Tickets))
	assert.False(t, state.Loading)
	assert.Empty(t, state.Err)
}

func TestFetchTickets_AcceptsPaginatedEnvelope(t *testing.T) {
	store, _, _ := newTestStore(t, func(_, _ string, _ any) (*apiclient.Response, error) {
		return respJSON(t, http.StatusOK, map[string]any{
			"count":   2,
			"results": []domain.Ticket{ticket(4, "T4"), ticket(3, "T3")},
		}), nil
	})

	tickets, apiErr := store.FetchTickets(context.Background(), nil)
	require.Nil(t, apiErr)
	assert.Equal(t, []int64{4, 3}, ids(tickets))
}

func TestCreateTicket_PrependsAndReturnsRecord(t *testing.T) {
	created := ticket(3, "Cannot login")
	created.Priority = domain.TicketPriorityHigh
	created.Category = domain.TicketCategoryBug

	store, _, _ := newTestStore(t, func(method, path string, _ any) (*apiclient.Response, error) {
		if method == http.MethodGet {
			return respJSON(t, http.StatusOK, []domain.Ticket{ticket(2, "T2"), ticket(1, "T1")}), nil
		}
		assert.Equal(t, "/tickets/", path)
		return respJSON(t, http.StatusCreated, created), nil
	})

	_, apiErr := store.FetchTickets(context.Background(), nil)
	require.Nil(t, apiErr)

	result, apiErr := store.CreateTicket(context.Background(), createReq("Cannot login"))
	require.Nil(t, apiErr)
	assert.Equal(t, int64(3), result.ID)

	state := store.Snapshot()
	assert.Equal(t, []int64{3, 2, 1}, ids(state.Tickets))
	assert.Nil(t, state.Current, "creation must not touch the detail record")
}

func TestUpdateStatus_PatchesListAndCurrentTogether(t *testing.T) {
	detail := ticket(2, "T2")
	resolved := ticket(2, "T2")
	resolved.Status = domain.TicketStatusResolved
	resolved.AdminFeedback = "fixed"

	store, _, _ := newTestStore(t, func(method, path string, _ any) (*apiclient.Response, error) {
		switch {
		case method == http.MethodGet && path == "/tickets/":
			return respJSON(t, http.StatusOK, []domain.Ticket{ticket(2, "T2"), ticket(1, "T1")}), nil
		case method == http.MethodGet:
			return respJSON(t, http.StatusOK, detail), nil
		default:
			assert.Equal(t, "/tickets/2/update_status/", path)
			return respJSON(t, http.StatusOK, resolved), nil
		}
	})

	_, apiErr := store.FetchTickets(context.Background(), nil)
	require.Nil(t, apiErr)
	_, apiErr = store.FetchTicket(context.Background(), 2)
	require.Nil(t, apiErr)

	_, apiErr = store.UpdateStatus(context.Background(), 2, domain.TicketStatusResolved, "fixed")
	require.Nil(t, apiErr)

	state := store.Snapshot()
	assert.Equal(t, domain.TicketStatusResolved, state.Tickets[0].Status)
	require.NotNil(t, state.Current)
	assert.Equal(t, domain.TicketStatusResolved, state.Current.Status)
	assert.Equal(t, "fixed", state.Current.AdminFeedback)
}

func TestUpdateTicket_LeavesUnrelatedCurrentUntouched(t *testing.T) {
	detail := ticket(1, "T1")
	updated := ticket(2, "T2")
	updated.Status = domain.TicketStatusClosed

	store, _, _ := newTestStore(t, func(method, path string, _ any) (*apiclient.Response, error) {
		switch {
		case method == http.MethodGet && path == "/tickets/":
			return respJSON(t, http.StatusOK, []domain.Ticket{ticket(2, "T2"), ticket(1, "T1")}), nil
		case method == http.MethodGet:
			return respJSON(t, http.StatusOK, detail), nil
		default:
			return respJSON(t, http.StatusOK, updated), nil
		}
	})

	_, apiErr := store.FetchTickets(context.Background(), nil)
	require.Nil(t, apiErr)
	_, apiErr = store.FetchTicket(context.Background(), 1)
	require.Nil(t, apiErr)

	_, apiErr = store.UpdateTicket(context.Background(), 2, updateReqTitle("T2"))
	require.Nil(t, apiErr)

	state := store.Snapshot()
	assert.Equal(t, domain.TicketStatusClosed, state.Tickets[0].Status)
	assert.Equal(t, int64(1), state.Current.ID)
	assert.Equal(t, domain.TicketStatusOpen, state.Current.Status)
}

func TestAddComment_DroppedWhenViewingAnotherTicket(t *testing.T) {
	detail := ticket(2, "B")

	store, _, _ := newTestStore(t, func(method, path string, _ any) (*apiclient.Response, error) {
		if method == http.MethodGet {
			return respJSON(t, http.StatusOK, detail), nil
		}
		assert.Equal(t, "/tickets/1/add_comment/", path)
		return respJSON(t, http.StatusCreated, domain.Comment{ID: 9, Content: "for ticket A"}), nil
	})

	_, apiErr := store.FetchTicket(context.Background(), 2)
	require.Nil(t, apiErr)

	comment, apiErr := store.AddComment(context.Background(), 1, "for ticket A", false)
	require.Nil(t, apiErr)
	assert.Equal(t, int64(9), comment.ID)

	state := store.Snapshot()
	assert.Empty(t, state.Current.Comments)
}

func TestAddComment_AppendsToViewedTicket(t *testing.T) {
	detail := ticket(2, "B")

	store, _, _ := newTestStore(t, func(method, _ string, _ any) (*apiclient.Response, error) {
		if method == http.MethodGet {
			return respJSON(t, http.StatusOK, detail), nil
		}
		return respJSON(t, http.StatusCreated, domain.Comment{ID: 9, Content: "hello"}), nil
	})

	_, apiErr := store.FetchTicket(context.Background(), 2)
	require.Nil(t, apiErr)
	_, apiErr = store.AddComment(context.Background(), 2, "hello", false)
	require.Nil(t, apiErr)

	state := store.Snapshot()
	require.Len(t, state.Current.Comments, 1)
	assert.Equal(t, "hello", state.Current.Comments[0].Content)
}

func TestErrorsAreNormalizedAndStored(t *testing.T) {
	store, _, _ := newTestStore(t, func(_, _ string, _ any) (*apiclient.Response, error) {
		return respJSON(t, http.StatusInternalServerError, map[string]string{"error": "boom"}), nil
	})

	_, apiErr := store.FetchTickets(context.Background(), nil)
	require.NotNil(t, apiErr)
	assert.Equal(t, "boom", apiErr.Message)

	state := store.Snapshot()
	assert.Equal(t, "boom", state.Err)
	assert.False(t, state.Loading)

	store.ClearError(context.Background())
	assert.Empty(t, store.Snapshot().Err)
}

func TestResultsAfterLogoutAreDropped(t *testing.T) {
	var store *Store
	var session *fakeSession
	var dispatcher events.Dispatcher

	store, session, dispatcher = newTestStore(t, func(_, _ string, _ any) (*apiclient.Response, error) {
		// A logout lands while the fetch is in flight.
		session.mu.Lock()
		session.gen++
		session.auth = false
		session.mu.Unlock()
		dispatcher.Publish(context.Background(), events.Event{Type: events.EventSessionChanged})
		return respJSON(t, http.StatusOK, []domain.Ticket{ticket(1, "T1")}), nil
	})

	_, apiErr := store.FetchTickets(context.Background(), nil)
	require.Nil(t, apiErr)

	state := store.Snapshot()
	assert.Empty(t, state.Tickets, "stale result must not resurrect session state")
	assert.False(t, state.Loading)
}

func TestFetchTicket_StaleDetailResponseDropped(t *testing.T) {
	var store *Store
	store, _, _ = newTestStore(t, func(_, _ string, _ any) (*apiclient.Response, error) {
		// The view is abandoned before the response lands.
		store.ClearCurrent(context.Background())
		return respJSON(t, http.StatusOK, ticket(7, "late")), nil
	})

	result, apiErr := store.FetchTicket(context.Background(), 7)
	require.Nil(t, apiErr)
	assert.Equal(t, int64(7), result.ID)
	assert.Nil(t, store.Snapshot().Current)
}

func TestStats_DoesNotTouchListState(t *testing.T) {
	store, _, _ := newTestStore(t, func(_, path string, _ any) (*apiclient.Response, error) {
		assert.Equal(t, "/tickets/stats/", path)
		return respJSON(t, http.StatusOK, domain.TicketStats{
			Total:      3,
			Open:       2,
			Resolved:   1,
			ByPriority: map[string]int{"high": 1},
			ByCategory: map[string]int{"bug": 2},
		}), nil
	})

	stats, apiErr := store.Stats(context.Background())
	require.Nil(t, apiErr)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByPriority["high"])
	assert.Empty(t, store.Snapshot().Tickets)
}
