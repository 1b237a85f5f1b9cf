package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/mailmirror/internal/store"
	intsync "github.com/matheus3301/mailmirror/internal/sync"
)

type messageView struct {
	ID                int64     `json:"id"`
	ExternalMessageID string    `json:"externalMessageId"`
	ThreadID          string    `json:"threadId"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	SentAt            time.Time `json:"sentAt"`
	IsSent            bool      `json:"isSent"`
}

type threadView struct {
	Handle        string    `json:"handle"`
	ThreadID      string    `json:"threadId"`
	Subject       string    `json:"subject"`
	From          string    `json:"from"`
	FromEmail     string    `json:"fromEmail"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	MessageCount  int       `json:"messageCount"`
	UnreadCount   int       `json:"unreadCount"`
	HasTask       bool      `json:"hasTask"`
}

type searchView struct {
	messageView
	Handle  string `json:"handle"`
	Snippet string `json:"snippet"`
}

func (s *Server) messageViews(msgs []store.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.messageView(m))
	}
	return out
}

func (s *Server) messageView(m store.Message) messageView {
	return messageView{
		ID:                m.ID,
		ExternalMessageID: m.ExternalMessageID,
		ThreadID:          m.ExternalThreadID,
		Subject:           m.Subject,
		Body:              m.Body,
		From:              m.Sender,
		To:                m.Recipient,
		SentAt:            time.UnixMilli(m.SentAt).UTC(),
		IsSent:            s.opts.AccountEmail != "" && strings.EqualFold(addressOf(m.Sender), s.opts.AccountEmail),
	}
}

// addressOf returns the bare address of "Name <addr>", or s itself.
func addressOf(s string) string {
	if a, err := mail.ParseAddress(s); err == nil {
		return a.Address
	}
	return strings.TrimSpace(s)
}

// resolved fails the request with ErrNoThreadID when handle has no external thread id.
func (s *Server) resolved(c *gin.Context, handle string) bool {
	if _, err := s.mirror.Resolve(c.Request.Context(), handle); err != nil {
		if errors.Is(err, intsync.ErrUnresolvedThread) {
			err = fmt.Errorf("%w: %s", intsync.ErrNoThreadID, handle)
		}
		s.fail(c, err)
		return false
	}
	return true
}

func (s *Server) listThreads(c *gin.Context) {
	threads, err := s.mirror.ListThreads(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]threadView, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadView{
			Handle:        t.Handle,
			ThreadID:      t.ExternalThreadID,
			Subject:       t.Subject,
			From:          t.Counterpart,
			FromEmail:     addressOf(t.Counterpart),
			LastMessageAt: time.UnixMilli(t.LastMessageAt).UTC(),
			MessageCount:  t.MessageCount,
			UnreadCount:   t.UnreadCount,
			HasTask:       t.HasTask,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "threads": out})
}

func (s *Server) checkUpdates(c *gin.Context) {
	u, err := s.mirror.CheckUpdates(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	handles := u.Handles
	if handles == nil {
		handles = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":                true,
		"hasUpdates":             len(handles) > 0,
		"handlesWithNewMessages": handles,
		"totalThreads":           u.Total,
	})
}

func (s *Server) syncThread(c *gin.Context) {
	handle := c.Param("handle")
	if !s.resolved(c, handle) {
		return
	}
	res, err := s.mirror.Sync(c.Request.Context(), handle)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "syncedCount": res.Synced, "totalMessages": res.Total})
}

func (s *Server) markRead(c *gin.Context) {
	if err := s.mirror.MarkRead(c.Request.Context(), c.Param("handle")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) leave(c *gin.Context) {
	n, err := s.mirror.Erase(c.Request.Context(), c.Param("handle"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}

func (s *Server) messages(c *gin.Context) {
	msgs, err := s.mirror.Messages(c.Request.Context(), c.Param("handle"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": s.messageViews(msgs)})
}

func (s *Server) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		s.fail(c, errMissingQuery)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	results, err := s.mirror.Search(c.Request.Context(), q, c.Query("handle"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]searchView, 0, len(results))
	for _, r := range results {
		out = append(out, searchView{
			messageView: s.messageView(r.Message),
			Handle:      r.Message.Handle,
			Snippet:     r.Snippet,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": out})
}
