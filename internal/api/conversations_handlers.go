package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/converso-io/converso-ce/internal/models"
	"github.com/converso-io/converso-ce/internal/repository"
	"github.com/converso-io/converso-ce/internal/service"
)

// ConversationsHandler serves the conversation intake endpoints. Creating a
// conversation runs assignment routing immediately so the response already
// carries the routed outcome.
type ConversationsHandler struct {
	conversations repository.IConversationRepository
	assignments   *service.AssignmentService
}

func NewConversationsHandler(conversations repository.IConversationRepository, assignments *service.AssignmentService) *ConversationsHandler {
	return &ConversationsHandler{conversations: conversations, assignments: assignments}
}

type createVisitorPayload struct {
	Email      *string        `json:"email"`
	Name       *string        `json:"name"`
	Country    *string        `json:"country"`
	Attributes map[string]any `json:"attributes"`
}

type createConversationRequest struct {
	VisitorID string                `json:"visitor_id"`
	Visitor   *createVisitorPayload `json:"visitor"`
	Channel   string                `json:"channel" binding:"required"`
	Source    string                `json:"source"`
	Message   string                `json:"message"`
}

func (h *ConversationsHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.VisitorID == "" && req.Visitor == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either visitor_id or visitor is required"})
		return
	}

	ctx := c.Request.Context()
	workspaceID := c.Param("workspace_id")
	now := time.Now().UTC()

	visitorID := req.VisitorID
	if visitorID == "" {
		visitor := &models.Visitor{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Email:       req.Visitor.Email,
			Name:        req.Visitor.Name,
			Country:     req.Visitor.Country,
			Attributes:  req.Visitor.Attributes,
			CreatedAt:   now,
		}
		if err := h.conversations.CreateVisitor(ctx, visitor); err != nil {
			respondError(c, err)
			return
		}
		visitorID = visitor.ID
	}

	conversation := &models.Conversation{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		VisitorID:   visitorID,
		Channel:     req.Channel,
		Source:      req.Source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.conversations.Create(ctx, conversation); err != nil {
		respondError(c, err)
		return
	}

	if req.Message != "" {
		message := &models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversation.ID,
			AuthorType:     "visitor",
			Content:        req.Message,
			CreatedAt:      now,
		}
		if err := h.conversations.CreateMessage(ctx, message); err != nil {
			respondError(c, err)
			return
		}
	}

	assignment, err := h.assignments.ApplyAssignment(ctx, conversation.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if assignment != nil && assignment.ActionType == models.ActionAssignUser {
		conversation.AssigneeUserID = &assignment.UserID
	}

	c.JSON(http.StatusCreated, gin.H{
		"conversation": conversation,
		"assignment":   assignment,
	})
}

func (h *ConversationsHandler) Get(c *gin.Context) {
	conversation, err := h.conversations.GetByID(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if conversation == nil || conversation.WorkspaceID != c.Param("workspace_id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// Route re-runs assignment routing for an existing conversation, for the
// case where rules changed after intake.
func (h *ConversationsHandler) Route(c *gin.Context) {
	conversation, err := h.conversations.GetByID(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if conversation == nil || conversation.WorkspaceID != c.Param("workspace_id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	assignment, err := h.assignments.ApplyAssignment(c.Request.Context(), conversation.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": assignment})
}
