package handlers

import (
	"net/http"

	"github.com/vedran77/pulsecore/internal/logger"
	"github.com/vedran77/pulsecore/internal/service"
)

type Middleware func(http.Handler) http.Handler

// Register mounts the messaging API under /api/v1. Every route goes through
// auth; writes also go through the rate limiter.
func Register(mux *http.ServeMux, delivery *service.Delivery, log *logger.Logger, auth, limit Middleware) {
	messages := NewMessageHandler(delivery, log)
	threads := NewThreadHandler(delivery, log)
	reads := NewReadHandler(delivery, log)

	read := func(h http.HandlerFunc) http.Handler { return auth(h) }
	write := func(h http.HandlerFunc) http.Handler { return auth(limit(h)) }

	// Conversations
	mux.Handle("GET /api/v1/conversations", read(reads.Conversations))

	// Channel and direct timelines
	for _, prefix := range []string{"/api/v1/channels/{id}", "/api/v1/direct/{userId}"} {
		mux.Handle("GET "+prefix+"/messages", read(messages.List))
		mux.Handle("POST "+prefix+"/messages", write(messages.Send))
		mux.Handle("GET "+prefix+"/unread", read(reads.Unread))
		mux.Handle("POST "+prefix+"/read", write(reads.MarkAllRead))
		mux.Handle("GET "+prefix+"/pins", read(messages.Pinned))
	}

	// Messages
	mux.Handle("GET /api/v1/messages/{id}", read(messages.Get))
	mux.Handle("PATCH /api/v1/messages/{id}", write(messages.Edit))
	mux.Handle("DELETE /api/v1/messages/{id}", write(messages.Delete))
	mux.Handle("GET /api/v1/messages/{id}/history", read(messages.History))
	mux.Handle("PUT /api/v1/messages/{id}/reactions/{emoji}", write(messages.React))
	mux.Handle("DELETE /api/v1/messages/{id}/reactions/{emoji}", write(messages.Unreact))
	mux.Handle("PUT /api/v1/messages/{id}/pin", write(messages.Pin))
	mux.Handle("DELETE /api/v1/messages/{id}/pin", write(messages.Unpin))
	mux.Handle("POST /api/v1/messages/{id}/read", write(reads.MarkRead))

	// Threads
	mux.Handle("GET /api/v1/messages/{id}/replies", read(threads.Replies))
	mux.Handle("POST /api/v1/messages/{id}/replies", write(threads.Reply))
	mux.Handle("GET /api/v1/messages/{id}/thread", read(threads.Summary))
}
