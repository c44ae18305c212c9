// Package httpapi exposes the chat service as a JSON API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/syno/internal/chat"
	"github.com/felixgeelhaar/syno/internal/conversation"
	"github.com/felixgeelhaar/syno/internal/observe"
	"github.com/felixgeelhaar/syno/internal/rag"
)

// TimeLayout renders message timestamps as dd.mm.yyyy hh:mm:ss.
const TimeLayout = "02.01.2006 15:04:05"

// Searcher answers evidence lookups for GET /search.
type Searcher interface {
	Retrieve(ctx context.Context, query string, k int) []rag.Evidence
}

type handler struct {
	svc    *chat.Service
	search Searcher
	obs    *observe.Observer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc *chat.Service, search Searcher, obs *observe.Observer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	h := &handler{svc: svc, search: search, obs: obs}

	router := gin.New()
	router.Use(h.logRequests(), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		obs.Log().Error().Str("path", c.Request.URL.Path).Msg("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	})

	router.GET("/users", h.listUsers)
	router.POST("/users", h.createUser)
	router.POST("/new", h.createUser)
	router.GET("/chat/:uuid", h.openChat)
	router.POST("/message", h.saveMessage)
	router.GET("/messages/:uuid", h.getMessages)
	router.DELETE("/messages/:uuid", h.clearMessages)
	router.GET("/search", h.searchCorpus)

	return router
}

func (h *handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.obs.Log().Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Int("ms", int(time.Since(start).Milliseconds())).
			Msg("request")
	}
}

type userJSON struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

func (h *handler) listUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]userJSON, len(users))
	for i, u := range users {
		out[i] = userJSON{UUID: u.ID, Name: u.Name}
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) createUser(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, greeting, err := h.svc.CreateUser(c.Request.Context(), body.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"uuid": user.ID, "name": user.Name, "initial_prompt": greeting})
}

func (h *handler) openChat(c *gin.Context) {
	greeting, resumed, err := h.svc.OpenChat(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if resumed {
		c.JSON(http.StatusOK, gin.H{"initial_prompt": nil, "resumed": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"initial_prompt": greeting, "resumed": false})
}

func (h *handler) saveMessage(c *gin.Context) {
	var body struct {
		ChatID  string `json:"chat_id"`
		Sender  string `json:"sender"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ChatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	reply, err := h.svc.SendMessage(c.Request.Context(), body.ChatID, body.Sender, body.Message)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "Message saved", "response": reply})
}

type messageJSON struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

func (h *handler) getMessages(c *gin.Context) {
	msgs, err := h.svc.Messages(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]messageJSON, len(msgs))
	for i, m := range msgs {
		out[i] = messageJSON{Sender: m.Sender, Message: m.Text, CreatedAt: m.CreatedAt.Format(TimeLayout)}
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) clearMessages(c *gin.Context) {
	greeting, err := h.svc.ClearMessages(c.Request.Context(), c.Param("uuid"))
	if errors.Is(err, chat.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "User not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Chat history cleared", "initial_prompt": greeting})
}

func (h *handler) searchCorpus(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	k, _ := strconv.Atoi(c.DefaultQuery("k", "0"))

	evidence := []rag.Evidence{}
	if h.search != nil {
		evidence = h.search.Retrieve(c.Request.Context(), q, k)
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "evidence": evidence})
}

// fail maps service errors onto status codes.
func (h *handler) fail(c *gin.Context, err error) {
	var ire *conversation.InvalidRoleError
	switch {
	case errors.Is(err, chat.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.As(err, &ire), errors.Is(err, chat.ErrEmptyName), errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.obs.Log().Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
