package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

const streamHeartbeatInterval = 15 * time.Second

// StreamUpdates pushes reconciled snapshot changes to the client as
// server-sent events. One event per collection change, plus a comment
// heartbeat to keep idle proxies from dropping the connection.
func (s *Server) StreamUpdates(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sub := s.reconciler.Updates().Subscribe()
	defer s.reconciler.Updates().Unsubscribe(sub)

	fmt.Fprintf(c.Writer, "retry: 2000\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-sub.C():
			if !ok {
				return
			}
			payload, err := json.Marshal(update)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", update.Collection, payload)
			c.Writer.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}
