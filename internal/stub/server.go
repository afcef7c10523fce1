// Package stub is an in-memory implementation of the ticketing
// backend's REST contract. It backs integration-style tests and the
// `ticketctl stub` development server; it is not the real backend.
package stub

import (
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-client/internal/api/dto"
	"github.com/spec-kit/ticket-client/internal/domain"
)

type account struct {
	profile      domain.UserProfile
	passwordHash string
}

// Server holds the in-memory dataset and the fiber app serving it.
type Server struct {
	app    *fiber.App
	logger *zap.Logger
	tokens *TokenManager

	mu           sync.Mutex
	users        map[int64]*account
	usersByEmail map[string]int64
	tickets      map[int64]*domain.Ticket
	revoked      map[string]bool
	nextUserID   int64
	nextTicketID int64
	nextComment  int64
}

// NewServer builds the stub with empty state.
func NewServer(logger *zap.Logger) *Server {
	s := &Server{
		app:          fiber.New(fiber.Config{DisableStartupMessage: true}),
		logger:       logger,
		tokens:       NewTokenManager("stub-backend-secret", 15*time.Minute, 24*time.Hour),
		users:        make(map[int64]*account),
		usersByEmail: make(map[string]int64),
		tickets:      make(map[int64]*domain.Ticket),
		revoked:      make(map[string]bool),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	auth := s.app.Group("/auth")
	auth.Post("/register/", s.handleRegister)
	auth.Post("/login/", s.handleLogin)
	auth.Post("/token/refresh/", s.handleRefresh)
	auth.Post("/logout/", s.requireAuth, s.handleLogout)

	tickets := s.app.Group("/tickets", s.requireAuth)
	tickets.Get("/", s.handleListTickets)
	tickets.Post("/", s.handleCreateTicket)
	tickets.Get("/my_tickets/", s.handleMyTickets)
	tickets.Get("/assigned_to_me/", s.handleAssignedTickets)
	tickets.Get("/stats/", s.handleStats)
	tickets.Get("/:id/", s.handleGetTicket)
	tickets.Patch("/:id/", s.handleUpdateTicket)
	tickets.Patch("/:id/update_status/", s.handleUpdateStatus)
	tickets.Post("/:id/add_comment/", s.handleAddComment)
}

// Listen serves on addr until the listener fails.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Serve runs the app on an existing listener; tests pass one bound to
// a random port.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops the app.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// SeedUser registers an account directly, bypassing HTTP. Returns the
// created profile.
func (s *Server) SeedUser(email, name, password string, staff bool) domain.UserProfile {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	profile := domain.UserProfile{
		ID:       s.nextUserID,
		Email:    email,
		Name:     name,
		JoinedAt: time.Now().UTC(),
		IsStaff:  staff,
	}
	s.users[profile.ID] = &account{profile: profile, passwordHash: string(hash)}
	s.usersByEmail[email] = profile.ID
	return profile
}

// --- auth handlers ---

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if req.Email == "" || req.Name == "" || req.Password == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "email, name and password are required"})
	}
	if req.Password != req.PasswordConfirm {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"password_confirm": "Passwords do not match."})
	}
	if len(req.Password) < 8 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"password": "Password must be at least 8 characters."})
	}

	s.mu.Lock()
	if _, exists := s.usersByEmail[req.Email]; exists {
		s.mu.Unlock()
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"email": "A user with this email already exists."})
	}
	s.mu.Unlock()

	profile := s.SeedUser(req.Email, req.Name, req.Password, false)
	access, refresh, err := s.tokens.IssuePair(profile.ID)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "token issue failed"})
	}

	s.logger.Info("stub: user registered", zap.String("email", req.Email))
	return c.Status(http.StatusCreated).JSON(dto.AuthResponse{
		User:   profile,
		Tokens: domain.Credentials{AccessToken: access, RefreshToken: refresh},
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	s.mu.Lock()
	id, ok := s.usersByEmail[req.Email]
	var acct *account
	if ok {
		acct = s.users[id]
	}
	s.mu.Unlock()

	if acct == nil || bcrypt.CompareHashAndPassword([]byte(acct.passwordHash), []byte(req.Password)) != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password."})
	}

	access, refresh, err := s.tokens.IssuePair(acct.profile.ID)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "token issue failed"})
	}

	s.logger.Info("stub: user logged in", zap.String("email", req.Email))
	return c.JSON(dto.AuthResponse{
		User:   acct.profile,
		Tokens: domain.Credentials{AccessToken: access, RefreshToken: refresh},
	})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.Refresh == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "refresh token required"})
	}

	s.mu.Lock()
	revoked := s.revoked[req.Refresh]
	s.mu.Unlock()
	if revoked {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"detail": "Token is blacklisted"})
	}

	userID, err := s.tokens.ParseToken(req.Refresh, "refresh")
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"detail": "Token is invalid or expired"})
	}

	access, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "token issue failed"})
	}
	return c.JSON(dto.RefreshResponse{Access: access})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	var req dto.LogoutRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Refresh token is required"})
	}

	s.mu.Lock()
	s.revoked[req.RefreshToken] = true
	s.mu.Unlock()
	return c.JSON(fiber.Map{"message": "Logout successful"})
}

// requireAuth resolves the bearer access token to a user and stashes
// the profile on the request context.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"detail": "Authentication credentials were not provided."})
	}

	userID, err := s.tokens.ParseToken(header[len(prefix):], "access")
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"detail": "Given token not valid for any token type"})
	}

	s.mu.Lock()
	acct := s.users[userID]
	s.mu.Unlock()
	if acct == nil {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"detail": "User not found"})
	}

	c.Locals("user", acct.profile)
	return c.Next()
}

func currentUser(c *fiber.Ctx) domain.UserProfile {
	return c.Locals("user").(domain.UserProfile)
}

// --- ticket handlers ---

func (s *Server) handleListTickets(c *fiber.Ctx) error {
	user := currentUser(c)
	status := c.Query("status")
	priority := c.Query("priority")
	category := c.Query("category")

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if !user.Elevated() && (ticket.User == nil || ticket.User.ID != user.ID) {
			continue
		}
		if status != "" && string(ticket.Status) != status {
			continue
		}
		if priority != "" && string(ticket.Priority) != priority {
			continue
		}
		if category != "" && string(ticket.Category) != category {
			continue
		}
		result = append(result, listView(ticket))
	}
	sortNewestFirst(result)
	return c.JSON(result)
}

func (s *Server) handleMyTickets(c *fiber.Ctx) error {
	user := currentUser(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if ticket.User != nil && ticket.User.ID == user.ID {
			result = append(result, listView(ticket))
		}
	}
	sortNewestFirst(result)
	return c.JSON(result)
}

func (s *Server) handleAssignedTickets(c *fiber.Ctx) error {
	user := currentUser(c)
	if !user.Elevated() {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "Only admins can view assigned tickets"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if ticket.AssignedTo != nil && ticket.AssignedTo.ID == user.ID {
			result = append(result, listView(ticket))
		}
	}
	sortNewestFirst(result)
	return c.JSON(result)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	user := currentUser(c)
	if !user.Elevated() {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "Only admins can access ticket statistics"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.TicketStats{
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
	}
	for _, ticket := range s.tickets {
		stats.Total++
		switch ticket.Status {
		case domain.TicketStatusOpen:
			stats.Open++
		case domain.TicketStatusInProgress:
			stats.InProgress++
		case domain.TicketStatusPendingUser:
			stats.PendingUser++
		case domain.TicketStatusResolved:
			stats.Resolved++
		case domain.TicketStatusClosed:
			stats.Closed++
		}
		stats.ByPriority[string(ticket.Priority)]++
		stats.ByCategory[string(ticket.Category)]++
	}
	return c.JSON(stats)
}

func (s *Server) handleGetTicket(c *fiber.Ctx) error {
	user := currentUser(c)
	ticket, errResp := s.visibleTicket(c, user)
	if ticket == nil {
		return errResp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(detailView(ticket, user))
}

func (s *Server) handleCreateTicket(c *fiber.Ctx) error {
	user := currentUser(c)
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if len(req.Title) < 5 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"title": "Title must be at least 5 characters long."})
	}
	if len(req.Description) < 10 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"description": "Description must be at least 10 characters long."})
	}
	if req.Category == "" {
		req.Category = domain.TicketCategorySupport
	}
	if req.Priority == "" {
		req.Priority = domain.TicketPriorityMedium
	}

	s.mu.Lock()
	s.nextTicketID++
	now := time.Now().UTC()
	owner := domain.UserBasic{ID: user.ID, Email: user.Email, Name: user.Name}
	ticket := &domain.Ticket{
		ID:          s.nextTicketID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Status:      domain.TicketStatusOpen,
		User:        &owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tickets[ticket.ID] = ticket
	view := detailView(ticket, user)
	s.mu.Unlock()

	s.logger.Info("stub: ticket created", zap.Int64("ticket_id", ticket.ID), zap.String("title", ticket.Title))
	return c.Status(http.StatusCreated).JSON(view)
}

func (s *Server) handleUpdateTicket(c *fiber.Ctx) error {
	user := currentUser(c)
	ticket, errResp := s.visibleTicket(c, user)
	if ticket == nil {
		return errResp
	}

	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	s.mu.Lock()
	if req.Title != nil {
		ticket.Title = *req.Title
	}
	if req.Description != nil {
		ticket.Description = *req.Description
	}
	if req.Category != nil {
		ticket.Category = *req.Category
	}
	if req.Priority != nil {
		ticket.Priority = *req.Priority
	}
	if req.AssignedToID != nil {
		if assignee, ok := s.users[*req.AssignedToID]; ok {
			basic := domain.UserBasic{ID: assignee.profile.ID, Email: assignee.profile.Email, Name: assignee.profile.Name}
			ticket.AssignedTo = &basic
		} else {
			ticket.AssignedTo = nil
		}
	}
	ticket.UpdatedAt = time.Now().UTC()
	view := detailView(ticket, user)
	s.mu.Unlock()

	return c.JSON(view)
}

func (s *Server) handleUpdateStatus(c *fiber.Ctx) error {
	user := currentUser(c)
	if !user.Elevated() {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "Only admins can update ticket status"})
	}
	ticket, errResp := s.visibleTicket(c, user)
	if ticket == nil {
		return errResp
	}

	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "status is required"})
	}

	s.mu.Lock()
	ticket.Status = req.Status
	if req.AdminFeedback != "" {
		ticket.AdminFeedback = req.AdminFeedback
	}
	now := time.Now().UTC()
	if req.Status == domain.TicketStatusResolved && ticket.ResolvedAt == nil {
		ticket.ResolvedAt = &now
	}
	ticket.UpdatedAt = now
	view := detailView(ticket, user)
	s.mu.Unlock()

	s.logger.Info("stub: status updated", zap.Int64("ticket_id", ticket.ID), zap.String("status", string(req.Status)))
	return c.JSON(view)
}

func (s *Server) handleAddComment(c *fiber.Ctx) error {
	user := currentUser(c)
	ticket, errResp := s.visibleTicket(c, user)
	if ticket == nil {
		return errResp
	}

	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil || req.Content == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"content": "Comment content is required."})
	}
	if req.IsInternal && !user.Elevated() {
		return c.Status(http.StatusForbidden).JSON(fiber.Map{"error": "Only admins can add internal comments"})
	}

	s.mu.Lock()
	s.nextComment++
	author := domain.UserBasic{ID: user.ID, Email: user.Email, Name: user.Name}
	comment := domain.Comment{
		ID:             s.nextComment,
		Content:        req.Content,
		Author:         &author,
		IsInternal:     req.IsInternal,
		IsAdminComment: user.Elevated(),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	ticket.Comments = append(ticket.Comments, comment)
	ticket.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	return c.Status(http.StatusCreated).JSON(comment)
}

// visibleTicket loads the :id ticket, returning a written 404
// response when it does not exist or the caller may not see it.
func (s *Server) visibleTicket(c *fiber.Ctx, user domain.UserProfile) (*domain.Ticket, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return nil, c.Status(http.StatusNotFound).JSON(fiber.Map{"detail": "Not found."})
	}

	s.mu.Lock()
	ticket := s.tickets[id]
	s.mu.Unlock()

	if ticket == nil || (!user.Elevated() && (ticket.User == nil || ticket.User.ID != user.ID)) {
		return nil, c.Status(http.StatusNotFound).JSON(fiber.Map{"detail": "Not found."})
	}
	return ticket, nil
}

// listView renders the list serialization: no description, no
// thread, public comment count only.
func listView(ticket *domain.Ticket) domain.Ticket {
	view := *ticket
	view.Description = ""
	view.AdminFeedback = ""
	view.Comments = nil
	count := 0
	for _, comment := range ticket.Comments {
		if !comment.IsInternal {
			count++
		}
	}
	view.CommentCount = count
	return view
}

// detailView renders the full ticket; internal comments are stripped
// for non-staff callers.
func detailView(ticket *domain.Ticket, viewer domain.UserProfile) domain.Ticket {
	view := *ticket
	comments := make([]domain.Comment, 0, len(ticket.Comments))
	for _, comment := range ticket.Comments {
		if comment.IsInternal && !viewer.Elevated() {
			continue
		}
		comments = append(comments, comment)
	}
	view.Comments = comments
	return view
}

func sortNewestFirst(tickets []domain.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].ID > tickets[j].ID
		}
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
}
