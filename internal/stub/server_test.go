package stub_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-client/internal/api"
	"github.com/spec-kit/ticket-client/internal/api/dto"
	"github.com/spec-kit/ticket-client/internal/config"
	"github.com/spec-kit/ticket-client/internal/credstore"
	"github.com/spec-kit/ticket-client/internal/domain"
	"github.com/spec-kit/ticket-client/internal/events"
	"github.com/spec-kit/ticket-client/internal/observability"
	"github.com/spec-kit/ticket-client/internal/session"
	"github.com/spec-kit/ticket-client/internal/stub"
	"github.com/spec-kit/ticket-client/internal/ticketstore"
)

// startStub serves the stub backend on a random port and returns its
// base URL.
func startStub(t *testing.T) (*stub.Server, string) {
	t.Helper()

	srv := stub.NewServer(zap.NewNop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return srv, "http://" + ln.Addr().String()
}

func newStack(t *testing.T, baseURL string) (*session.Store, *ticketstore.Store) {
	t.Helper()

	client := api.NewClient(config.APIConfig{BaseURL: baseURL, TimeoutSeconds: 5}, zap.NewNop(), observability.NewMetrics())
	dispatcher := events.NewInMemoryDispatcher()
	sess := session.New(session.Dependencies{
		API:         client,
		Credentials: credstore.NewMemory(),
		Dispatcher:  dispatcher,
		Logger:      zap.NewNop(),
		Metrics:     observability.NewMetrics(),
	})
	return sess, ticketstore.New(sess, dispatcher, zap.NewNop())
}

func TestEndToEnd_TicketLifecycle(t *testing.T) {
	srv, baseURL := startStub(t)
	ctx := context.Background()

	userSession, userTickets := newStack(t, baseURL)
	resp, apiErr := userSession.Register(ctx, "alice@example.com", "Alice", "super-secret-1", "super-secret-1")
	require.Nil(t, apiErr)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.True(t, userSession.Authenticated())

	created, apiErr := userTickets.CreateTicket(ctx, dto.CreateTicketRequest{
		Title:       "Printer is on fire",
		Description: "Smoke is coming out of the office printer.",
		Category:    domain.TicketCategorySupport,
		Priority:    domain.TicketPriorityUrgent,
	})
	require.Nil(t, apiErr)
	assert.Equal(t, domain.TicketStatusOpen, created.Status)

	fetched, apiErr := userTickets.FetchTicket(ctx, created.ID)
	require.Nil(t, apiErr)
	assert.Equal(t, created.ID, fetched.ID)

	comment, apiErr := userTickets.AddComment(ctx, created.ID, "It is getting worse.", false)
	require.Nil(t, apiErr)
	assert.Equal(t, "alice@example.com", comment.Author.Email)

	state := userTickets.Snapshot()
	require.NotNil(t, state.Current)
	require.Len(t, state.Current.Comments, 1)

	// Staff side: resolve the ticket and read the aggregate stats.
	srv.SeedUser("bob@example.com", "Bob", "staff-secret-1", true)
	staffSession, staffTickets := newStack(t, baseURL)
	_, apiErr = staffSession.Login(ctx, "bob@example.com", "staff-secret-1")
	require.Nil(t, apiErr)

	list, apiErr := staffTickets.FetchTickets(ctx, nil)
	require.Nil(t, apiErr)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].CommentCount)

	resolved, apiErr := staffTickets.UpdateStatus(ctx, created.ID, domain.TicketStatusResolved, "Replaced the printer.")
	require.Nil(t, apiErr)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	assert.Equal(t, "Replaced the printer.", resolved.AdminFeedback)
	require.NotNil(t, resolved.ResolvedAt)

	stats, apiErr := staffTickets.Stats(ctx)
	require.Nil(t, apiErr)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.ByPriority[string(domain.TicketPriorityUrgent)])

	// The requester sees the resolution but never the staff-only stats.
	detail, apiErr := userTickets.FetchTicket(ctx, created.ID)
	require.Nil(t, apiErr)
	assert.Equal(t, domain.TicketStatusResolved, detail.Status)

	_, apiErr = userTickets.Stats(ctx)
	require.NotNil(t, apiErr)
}

func TestEndToEnd_VisibilityAndInternalComments(t *testing.T) {
	srv, baseURL := startStub(t)
	ctx := context.Background()

	srv.SeedUser("staff@example.com", "Staff", "staff-secret-1", true)

	aliceSession, aliceTickets := newStack(t, baseURL)
	_, apiErr := aliceSession.Register(ctx, "alice@example.com", "Alice", "super-secret-1", "super-secret-1")
	require.Nil(t, apiErr)

	bobSession, bobTickets := newStack(t, baseURL)
	_, apiErr = bobSession.Register(ctx, "bob@example.com", "Bob", "super-secret-2", "super-secret-2")
	require.Nil(t, apiErr)

	created, apiErr := aliceTickets.CreateTicket(ctx, dto.CreateTicketRequest{
		Title:       "Cannot log in to VPN",
		Description: "The VPN client rejects my password since this morning.",
	})
	require.Nil(t, apiErr)

	// Other requesters cannot see the ticket at all.
	_, apiErr = bobTickets.FetchTicket(ctx, created.ID)
	require.NotNil(t, apiErr)

	list, apiErr := bobTickets.MyTickets(ctx)
	require.Nil(t, apiErr)
	assert.Empty(t, list)

	// Staff leave an internal note; the requester's detail view hides it.
	staffSession, staffTickets := newStack(t, baseURL)
	_, apiErr = staffSession.Login(ctx, "staff@example.com", "staff-secret-1")
	require.Nil(t, apiErr)

	_, apiErr = staffTickets.AddComment(ctx, created.ID, "Looks like an expired cert.", true)
	require.Nil(t, apiErr)
	_, apiErr = staffTickets.AddComment(ctx, created.ID, "We are looking into it.", false)
	require.Nil(t, apiErr)

	staffView, apiErr := staffTickets.FetchTicket(ctx, created.ID)
	require.Nil(t, apiErr)
	assert.Len(t, staffView.Comments, 2)

	aliceView, apiErr := aliceTickets.FetchTicket(ctx, created.ID)
	require.Nil(t, apiErr)
	require.Len(t, aliceView.Comments, 1)
	assert.Equal(t, "We are looking into it.", aliceView.Comments[0].Content)
	assert.True(t, aliceView.Comments[0].IsAdminComment)
}

func TestEndToEnd_LogoutRevokesRefresh(t *testing.T) {
	_, baseURL := startStub(t)
	ctx := context.Background()

	sess, _ := newStack(t, baseURL)
	resp, apiErr := sess.Register(ctx, "carol@example.com", "Carol", "super-secret-3", "super-secret-3")
	require.Nil(t, apiErr)
	refresh := resp.Tokens.RefreshToken

	sess.Logout(ctx)
	assert.False(t, sess.Authenticated())

	// A revoked refresh token must not mint new access tokens.
	client := api.NewClient(config.APIConfig{BaseURL: baseURL, TimeoutSeconds: 5}, zap.NewNop(), observability.NewMetrics())
	raw, err := client.Do(ctx, "POST", "/auth/token/refresh/", "", dto.RefreshRequest{Refresh: refresh})
	require.NoError(t, err)
	assert.Equal(t, 401, raw.StatusCode)
}

func TestEndToEnd_RefreshKeepsSessionAlive(t *testing.T) {
	_, baseURL := startStub(t)
	ctx := context.Background()

	sess, tickets := newStack(t, baseURL)
	_, apiErr := sess.Register(ctx, "dave@example.com", "Dave", "super-secret-4", "super-secret-4")
	require.Nil(t, apiErr)

	before := sess.Snapshot().Credentials.AccessToken
	require.NoError(t, sess.Refresh(ctx))
	after := sess.Snapshot().Credentials.AccessToken
	assert.NotEqual(t, before, after)

	expiry, ok := sess.AccessTokenExpiry()
	require.True(t, ok)
	assert.True(t, expiry.After(time.Now()))

	// The refreshed token still authorizes requests.
	list, apiErr := tickets.MyTickets(ctx)
	require.Nil(t, apiErr)
	assert.Empty(t, list)
}
