package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackflow-backend/internal/data/repos"
	"github.com/yungbote/trackflow-backend/internal/http/response"
	"github.com/yungbote/trackflow-backend/internal/services"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GET /me
func (uh *UserHandler) GetMe(c *gin.Context) {
	me, err := uh.userService.GetMe(dbc(c))
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"me": me})
}

// GET /users?role=&q=
func (uh *UserHandler) List(c *gin.Context) {
	limit, offset := page(c)
	users, total, err := uh.userService.List(dbc(c), repos.UserFilter{
		Role:   c.Query("role"),
		Search: c.Query("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, listPayload(users, total, limit, offset))
}

func (uh *UserHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	u, err := uh.userService.Get(dbc(c), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user": u})
}

func (uh *UserHandler) Create(c *gin.Context) {
	var req services.CreateUserInput
	if !bindJSON(c, &req) {
		return
	}
	u, err := uh.userService.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"user": u})
}

func (uh *UserHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req services.UpdateUserInput
	if !bindJSON(c, &req) {
		return
	}
	u, err := uh.userService.Update(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user": u})
}

func (uh *UserHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := uh.userService.Delete(c.Request.Context(), id); err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /users/:id/reset-password {"password": "..."}
func (uh *UserHandler) ResetPassword(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := uh.userService.ResetPassword(c.Request.Context(), id, req.Password); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
