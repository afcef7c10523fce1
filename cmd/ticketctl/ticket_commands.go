package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-client/internal/api/dto"
	"github.com/spec-kit/ticket-client/internal/domain"
	"github.com/spec-kit/ticket-client/pkg/util"
)

func ticketsCmd(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "List and manage tickets",
	}
	cmd.AddCommand(
		ticketsListCmd(a),
		ticketsShowCmd(a),
		ticketsCreateCmd(a),
		ticketsUpdateCmd(a),
		ticketsStatusCmd(a),
		ticketsCommentCmd(a),
	)
	return cmd
}

func ticketsListCmd(a **app) *cobra.Command {
	var status, priority, category string
	var mine, assigned bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tickets []domain.Ticket
			var apiErr error
			switch {
			case mine:
				tickets, apiErr = asErr((*a).tickets.MyTickets(cmd.Context()))
			case assigned:
				tickets, apiErr = asErr((*a).tickets.AssignedTickets(cmd.Context()))
			default:
				filters := map[string]string{}
				if status != "" {
					filters["status"] = status
				}
				if priority != "" {
					filters["priority"] = priority
				}
				if category != "" {
					filters["category"] = category
				}
				tickets, apiErr = asErr((*a).tickets.FetchTickets(cmd.Context(), filters))
			}
			if apiErr != nil {
				return apiErr
			}
			for _, ticket := range tickets {
				printTicketRow(ticket)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&priority, "priority", "", "filter by priority")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().BoolVar(&mine, "mine", false, "only tickets I opened")
	cmd.Flags().BoolVar(&assigned, "assigned", false, "only tickets assigned to me (staff)")
	return cmd
}

func ticketsShowCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one ticket with its thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ticket id %q", args[0])
			}
			ticket, apiErr := (*a).tickets.FetchTicket(cmd.Context(), id)
			if apiErr != nil {
				return fmt.Errorf("%s", apiErr.Message)
			}
			printTicketDetail(*ticket)
			return nil
		},
	}
}

func ticketsCreateCmd(a **app) *cobra.Command {
	var title, description, category, priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ticket, apiErr := (*a).tickets.CreateTicket(cmd.Context(), dto.CreateTicketRequest{
				Title:       title,
				Description: description,
				Category:    domain.TicketCategory(category),
				Priority:    domain.TicketPriority(priority),
			})
			if apiErr != nil {
				return fmt.Errorf("%s", apiErr.Message)
			}
			fmt.Printf("created ticket #%d\n", ticket.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "ticket title")
	cmd.Flags().StringVar(&description, "description", "", "problem description")
	cmd.Flags().StringVar(&category, "category", string(domain.TicketCategorySupport), "support|bug|feature|billing|other")
	cmd.Flags().StringVar(&priority, "priority", string(domain.TicketPriorityMedium), "low|medium|high|urgent")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func ticketsUpdateCmd(a **app) *cobra.Command {
	var title, description, category, priority string
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Patch a ticket's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ticket id %q", args[0])
			}
			patch := dto.UpdateTicketRequest{}
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("category") {
				cat := domain.TicketCategory(category)
				patch.Category = &cat
			}
			if cmd.Flags().Changed("priority") {
				prio := domain.TicketPriority(priority)
				patch.Priority = &prio
			}
			ticket, apiErr := (*a).tickets.UpdateTicket(cmd.Context(), id, patch)
			if apiErr != nil {
				return fmt.Errorf("%s", apiErr.Message)
			}
			printTicketRow(*ticket)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	return cmd
}

func ticketsStatusCmd(a **app) *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Change a ticket's status (staff)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ticket id %q", args[0])
			}
			ticket, apiErr := (*a).tickets.UpdateStatus(cmd.Context(), id, domain.TicketStatus(args[1]), feedback)
			if apiErr != nil {
				return fmt.Errorf("%s", apiErr.Message)
			}
			printTicketRow(*ticket)
			return nil
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "admin feedback")
	return cmd
}

func ticketsCommentCmd(a **app) *cobra.Command {
	var internal bool
	cmd := &cobra.Command{
		Use:   "comment ID CONTENT",
		Short: "Comment on the ticket being viewed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ticket id %q", args[0])
			}
			// The comment reducer only applies to the viewed ticket.
			if _, apiErr := (*a).tickets.FetchTicket(cmd.Context(), id); apiErr != nil {
				return fmt.Errorf("%s", apiErr.Message)
			}
			comment, apiErr := (*a).tickets.AddComment(cmd.Context(), id, args[1], internal)
			if apiErr != nil {
				return fmt.Errorf("%s", apiErr.Message)
			}
			fmt.Printf("comment #%d added to ticket #%d\n", comment.ID, id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&internal, "internal", false, "staff-only internal note")
	return cmd
}

func statsCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ticket statistics (staff)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, apiErr := (*a).tickets.Stats(cmd.Context())
			if apiErr != nil {
				return fmt.Errorf("%s", apiErr.Message)
			}
			fmt.Printf("total: %d\n", stats.Total)
			fmt.Printf("  open: %d  in_progress: %d  pending_user: %d  resolved: %d  closed: %d\n",
				stats.Open, stats.InProgress, stats.PendingUser, stats.Resolved, stats.Closed)
			fmt.Printf("  by priority: %v\n", stats.ByPriority)
			fmt.Printf("  by category: %v\n", stats.ByCategory)
			return nil
		},
	}
}

// asErr converts the store's typed error to a plain error, keeping
// the nil-ness intact.
func asErr(tickets []domain.Ticket, apiErr *util.APIError) ([]domain.Ticket, error) {
	if apiErr != nil {
		return nil, fmt.Errorf("%s", apiErr.Message)
	}
	return tickets, nil
}

func printTicketRow(ticket domain.Ticket) {
	assignee := "-"
	if ticket.AssignedTo != nil {
		assignee = ticket.AssignedTo.Name
	}
	fmt.Printf("#%-4d [%s/%s] %-12s %s (assigned: %s)\n",
		ticket.ID, ticket.Category, ticket.Priority, ticket.Status, ticket.Title, assignee)
}

func printTicketDetail(ticket domain.Ticket) {
	printTicketRow(ticket)
	fmt.Println(ticket.Description)
	if ticket.AdminFeedback != "" {
		fmt.Printf("feedback: %s\n", ticket.AdminFeedback)
	}
	for _, comment := range ticket.Comments {
		author := "?"
		if comment.Author != nil {
			author = comment.Author.Name
		}
		marker := ""
		if comment.IsAdminComment {
			marker = " [admin]"
		}
		fmt.Printf("  %s%s: %s\n", author, marker, comment.Content)
	}
}
