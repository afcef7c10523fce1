package dto

import (
	"encoding/json"

	"github.com/spec-kit/ticket-client/internal/domain"
)

// CreateTicketRequest payload for POST /tickets/.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest is a partial ticket patch; nil fields are
// omitted from the wire payload.
type UpdateTicketRequest struct {
	Title        *string                `json:"title,omitempty"`
	Description  *string                `json:"description,omitempty"`
	Category     *domain.TicketCategory `json:"category,omitempty"`
	Priority     *domain.TicketPriority `json:"priority,omitempty"`
	AssignedToID *int64                 `json:"assigned_to_id,omitempty"`
}

// UpdateStatusRequest payload for PATCH /tickets/{id}/update_status/.
type UpdateStatusRequest struct {
	Status        domain.TicketStatus `json:"status"`
	AdminFeedback string              `json:"admin_feedback,omitempty"`
}

// AddCommentRequest payload for POST /tickets/{id}/add_comment/.
type AddCommentRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}

// TicketList decodes list endpoints that answer either a bare array
// or a paginated {"results": [...]} envelope.
type TicketList struct {
	Results []domain.Ticket
}

type paginatedTickets struct {
	Results []domain.Ticket `json:"results"`
}

// UnmarshalJSON accepts both list shapes.
func (l *TicketList) UnmarshalJSON(data []byte) error {
	var plain []domain.Ticket
	if err := json.Unmarshal(data, &plain); err == nil {
		l.Results = plain
		return nil
	}
	var paged paginatedTickets
	if err := json.Unmarshal(data, &paged); err != nil {
		return err
	}
	l.Results = paged.Results
	return nil
}
