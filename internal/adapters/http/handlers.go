package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/Chat/internal/auth"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const maxHistoryLimit = 200

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required,max=64"`
	Description string `json:"description" binding:"max=256"`
	IsPrivate   bool   `json:"isPrivate"`
}

type postMessageRequest struct {
	RoomID  string `json:"roomId" binding:"required"`
	Content string `json:"content"`
}

type roomResponse struct {
	ID          domain.RoomID `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	IsPrivate   bool          `json:"isPrivate"`
	Owner       domain.UserID `json:"owner"`
	Members     int           `json:"members"`
	OnlineCount int           `json:"onlineCount"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type messageResponse struct {
	ID            domain.MessageID   `json:"id"`
	RoomID        domain.RoomID      `json:"roomId"`
	Content       string             `json:"content"`
	Username      string             `json:"username"`
	Timestamp     time.Time          `json:"timestamp"`
	IsCurrentUser bool               `json:"isCurrentUser"`
	Type          domain.MessageType `json:"type"`
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return false
	}
	return true
}

func (api *API) register(c *gin.Context) {
	var req auth.RegisterInput
	if !bindJSON(c, &req) {
		return
	}
	u, err := api.Auth.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, auth.ProfileOf(u))
}

func (api *API) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	tokens, err := api.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	session := sessions.Default(c)
	session.Set(sessionTokenKey, tokens.AccessToken)
	if err := session.Save(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (api *API) refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}
	access, err := api.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access})
}

func (api *API) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.Status(http.StatusNoContent)
}

func (api *API) me(c *gin.Context) {
	u, err := api.Auth.Me(c.Request.Context(), identityFrom(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, auth.ProfileOf(u))
}

func (api *API) toRoomResponse(r domain.Room) roomResponse {
	return roomResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsPrivate:   r.IsPrivate(),
		Owner:       r.Owner,
		Members:     len(r.Members),
		OnlineCount: api.Orch.Rooms.LiveCount(r.ID),
		CreatedAt:   r.CreatedAt,
	}
}

func (api *API) createRoom(c *gin.Context) {
	var req createRoomRequest
	if !bindJSON(c, &req) {
		return
	}
	vis := domain.Public
	if req.IsPrivate {
		vis = domain.Private
	}
	room, err := api.Rooms.CreateRoom(c.Request.Context(), domain.Room{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  vis,
		Owner:       identityFrom(c).ID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.toRoomResponse(room))
}

func (api *API) listRooms(c *gin.Context) {
	rooms, err := api.Rooms.ListRooms(c.Request.Context(), identityFrom(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(rooms, func(r domain.Room, _ int) roomResponse {
		return api.toRoomResponse(r)
	}))
}

func (api *API) joinRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	snap, err := api.Orch.Rooms.JoinMember(c.Request.Context(), roomID, identityFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "users": snap})
}

func (api *API) leaveRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	if err := api.Orch.Rooms.LeaveMember(c.Request.Context(), roomID, identityFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID})
}

func (api *API) postMessage(c *gin.Context) {
	var req postMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	me := identityFrom(c)
	msg, err := api.Orch.Rooms.PostMessageAs(c.Request.Context(), domain.RoomID(req.RoomID), me, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMessageResponse(msg, me.ID))
}

func (api *API) roomMessages(c *gin.Context) {
	ctx := c.Request.Context()
	me := identityFrom(c)
	roomID := domain.RoomID(c.Param("roomId"))

	limit := api.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(c, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(c, fmt.Errorf("%w: before must be RFC3339", domain.ErrValidation))
			return
		}
		before = t
	}

	room, err := api.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	if room.IsPrivate() && !room.HasMember(me.ID) {
		writeError(c, domain.ErrForbidden)
		return
	}
	msgs, err := api.Rooms.GetMessages(ctx, roomID, limit, before)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(msgs, func(m domain.Message, _ int) messageResponse {
		return toMessageResponse(m, me.ID)
	}))
}

func toMessageResponse(m domain.Message, viewer domain.UserID) messageResponse {
	return messageResponse{
		ID:            m.ID,
		RoomID:        m.RoomID,
		Content:       m.Content,
		Username:      m.Username,
		Timestamp:     m.CreatedAt,
		IsCurrentUser: m.SenderID == viewer,
		Type:          m.Type,
	}
}
