package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "open"
	TicketStatusInProgress  TicketStatus = "in_progress"
	TicketStatusPendingUser TicketStatus = "pending_user"
	TicketStatusResolved    TicketStatus = "resolved"
	TicketStatusClosed      TicketStatus = "closed"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// TicketCategory classifies the kind of request.
type TicketCategory string

const (
	TicketCategorySupport TicketCategory = "support"
	TicketCategoryBug     TicketCategory = "bug"
	TicketCategoryFeature TicketCategory = "feature"
	TicketCategoryBilling TicketCategory = "billing"
	TicketCategoryOther   TicketCategory = "other"
)

// UserBasic is the minimal user view embedded in tickets and comments.
type UserBasic struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Comment is a message on a ticket thread. Append-only from the
// client's perspective.
type Comment struct {
	ID             int64      `json:"id"`
	Content        string     `json:"content"`
	Author         *UserBasic `json:"author"`
	IsInternal     bool       `json:"is_internal"`
	IsAdminComment bool       `json:"is_admin_comment"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Ticket is the aggregate for support requests as served by the backend.
// List responses omit Description, Comments and AdminFeedback; detail
// responses carry the full thread.
type Ticket struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Category      TicketCategory `json:"category"`
	Priority      TicketPriority `json:"priority"`
	Status        TicketStatus   `json:"status"`
	User          *UserBasic     `json:"user"`
	AssignedTo    *UserBasic     `json:"assigned_to"`
	AdminFeedback string         `json:"admin_feedback,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ResolvedAt    *time.Time     `json:"resolved_at"`
	Comments      []Comment      `json:"comments,omitempty"`
	CommentCount  int            `json:"comment_count,omitempty"`
}

// IsOpen reports whether the ticket still needs attention.
func (t *Ticket) IsOpen() bool {
	switch t.Status {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusPendingUser:
		return true
	}
	return false
}

// IsResolved reports whether work on the ticket has finished.
func (t *Ticket) IsResolved() bool {
	return t.Status == TicketStatusResolved || t.Status == TicketStatusClosed
}

// TicketStats aggregates counts across the visible ticket set.
// Served by the staff-only stats endpoint.
type TicketStats struct {
	Total       int            `json:"total"`
	Open        int            `json:"open"`
	InProgress  int            `json:"in_progress"`
	PendingUser int            `json:"pending_user"`
	Resolved    int            `json:"resolved"`
	Closed      int            `json:"closed"`
	ByPriority  map[string]int `json:"by_priority"`
	ByCategory  map[string]int `json:"by_category"`
}
