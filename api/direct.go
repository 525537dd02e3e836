package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"furima/models"
)

// participantQueryBase 組出私訊串列表共用的查詢基底，包含列表所需的關聯
func (impl *ServerImpl) participantQueryBase() *gorm.DB {
	return impl.db.Model(&models.Participant{}).
		Preload("Thread.Item").
		Preload("Opponent").
		Preload("LastResponse")
}

// List the current user's message threads
// (GET /api/participants)
func (impl *ServerImpl) ListParticipants(c *gin.Context) {
	const op = "ListParticipants"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var participants []models.Participant
	base := impl.participantQueryBase().
		Where("participants.user_id = ? AND participants.is_deleted = ?", userID, false).
		Order("participants.updated_at DESC")
	response, err := paginate(c, base, defaultPageSize, &participants)
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list participants, err=%w", op, err))
		return
	}
	response.Results = lo.Map(participants, func(participant models.Participant, _ int) participantPayload {
		return newParticipantPayload(participant)
	})
	c.JSON(http.StatusOK, response)
}

type createParticipantRequest struct {
	ItemID  uint   `json:"item_id" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// Start a message thread about an item
// (POST /api/participants)
func (impl *ServerImpl) CreateParticipant(c *gin.Context) {
	const op = "CreateParticipant"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var request createParticipantRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		validationError(c, map[string]string{"detail": "invalid request body"})
		return
	}

	var item models.Item
	result := impl.db.First(&item, request.ItemID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find item, err=%w", op, result.Error))
		return
	}
	if item.AuthorID == userID {
		validationError(c, map[string]string{"item_id": "cannot message your own item"})
		return
	}

	content := impl.htmlChecker.Sanitize(request.Content)
	participant, err := models.CreateThread(impl.db, item.ID, userID, item.AuthorID, content)
	switch {
	case errors.Is(err, models.ErrPairBlocked):
		validationError(c, map[string]string{"detail": "you cannot contact this user"})
		return
	case errors.Is(err, models.ErrParticipantExists):
		validationError(c, map[string]string{"item_id": "you already have a thread for this item"})
		return
	case err != nil:
		serverError(c, fmt.Errorf("[%s] Fail to create thread, err=%w", op, err))
		return
	}

	impl.notifyNewContact(item, content)
	c.JSON(http.StatusCreated, gin.H{"participant": participant.ID})
}

// notifyNewContact 通知物品作者有新的私訊，寄送失敗只記錄不影響回應
func (impl *ServerImpl) notifyNewContact(item models.Item, content string) {
	const op = "notifyNewContact"
	var author models.User
	if result := impl.db.First(&author, item.AuthorID); result.Error != nil {
		slog.Error("Fail to load item author for notification", slog.Any("error", result.Error))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	subject := fmt.Sprintf("New message about %q", item.Title)
	body := fmt.Sprintf("Hi %s,\n\nYou received a new message about your item %q:\n\n%s\n\n%s/direct\n", author.Username, item.Title, content, impl.config.Site.BaseURL)
	if err := impl.mailer.Send(ctx, author.Email, subject, body); err != nil {
		slog.Error("Fail to send contact mail", slog.String("op", op), slog.Any("error", err))
	}
}

// loadOwnedParticipant 取出私訊串參與者並確認屬於目前使用者
func (impl *ServerImpl) loadOwnedParticipant(c *gin.Context, participantID uint, userID uint) (*models.Participant, bool) {
	const op = "loadOwnedParticipant"
	var participant models.Participant
	result := impl.participantQueryBase().First(&participant, "participants.id = ?", participantID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find participant, err=%w", op, result.Error))
		return nil, false
	}
	if participant.UserID != userID {
		c.Status(http.StatusForbidden)
		return nil, false
	}
	return &participant, true
}

// Retrieve a message thread and mark it as read
// (GET /api/participants/:id)
func (impl *ServerImpl) RetrieveParticipant(c *gin.Context) {
	const op = "RetrieveParticipant"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	participantID, ok := pathID(c)
	if !ok {
		return
	}
	participant, ok := impl.loadOwnedParticipant(c, participantID, userID)
	if !ok {
		return
	}
	if err := models.MarkThreadRead(impl.db, participant); err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to mark thread read, err=%w", op, err))
		return
	}
	c.JSON(http.StatusOK, newParticipantPayload(*participant))
}

// Hide a message thread on the current user's side
// (POST /api/participants/:id/mark-delete)
func (impl *ServerImpl) MarkParticipantDeleted(c *gin.Context) {
	const op = "MarkParticipantDeleted"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	participantID, ok := pathID(c)
	if !ok {
		return
	}
	participant, ok := impl.loadOwnedParticipant(c, participantID, userID)
	if !ok {
		return
	}
	if err := models.MarkThreadDeleted(impl.db, participant); err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to mark thread deleted, err=%w", op, err))
		return
	}
	c.Status(http.StatusNoContent)
}

// Count unread threads updated since the user last checked
// (GET /api/participants/unconfirmed)
func (impl *ServerImpl) UnconfirmedParticipants(c *gin.Context) {
	const op = "UnconfirmedParticipants"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var user models.User
	if result := impl.db.First(&user, userID); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to find user, err=%w", op, result.Error))
		return
	}

	var count int64
	result := impl.db.Model(&models.Participant{}).
		Where("user_id = ? AND is_read = ? AND is_deleted = ?", userID, false, false).
		Where("updated_at > ?", user.DirectConfirmedAt).
		Count(&count)
	if result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to count unread threads, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// List the messages visible to a thread participant
// (GET /api/responses?participant_id=N)
func (impl *ServerImpl) ListResponses(c *gin.Context) {
	const op = "ListResponses"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	participantID, err := strconv.Atoi(c.Query("participant_id"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	participant, ok := impl.loadOwnedParticipant(c, uint(participantID), userID)
	if !ok {
		return
	}

	var responses []models.Response
	base := impl.db.Model(&models.Response{}).
		Preload("Sender").
		Scopes(models.VisibleResponsesScope(participant))
	response, err := paginate(c, base, defaultPageSize, &responses)
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to list responses, err=%w", op, err))
		return
	}
	response.Results = lo.Map(responses, func(item models.Response, _ int) responsePayload {
		return newResponsePayload(item)
	})
	c.JSON(http.StatusOK, response)
}

type createResponseRequest struct {
	ParticipantID uint   `json:"participant_id" binding:"required"`
	Content       string `json:"content" binding:"required"`
}

// Send a message in an existing thread
// (POST /api/responses)
func (impl *ServerImpl) CreateResponse(c *gin.Context) {
	const op = "CreateResponse"
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var request createResponseRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		validationError(c, map[string]string{"detail": "invalid request body"})
		return
	}
	participant, ok := impl.loadOwnedParticipant(c, request.ParticipantID, userID)
	if !ok {
		return
	}
	if participant.OpponentID == nil {
		validationError(c, map[string]string{"participant_id": "thread has no opponent"})
		return
	}

	content := impl.htmlChecker.Sanitize(request.Content)
	response, _, err := models.AddResponse(impl.db, participant.ThreadID, userID, *participant.OpponentID, content)
	switch {
	case errors.Is(err, models.ErrPairBlocked):
		validationError(c, map[string]string{"detail": "you cannot contact this user"})
		return
	case err != nil:
		serverError(c, fmt.Errorf("[%s] Fail to add response, err=%w", op, err))
		return
	}
	c.JSON(http.StatusCreated, newResponsePayload(*response))
}
