package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/refbatch/refbatch/internal/models"
	"github.com/refbatch/refbatch/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

type WSHandler struct {
	hub   *services.WSHub
	jobs  *services.JobService
	queue *services.QueueService
}

func NewWSHandler(hub *services.WSHub, jobs *services.JobService, queue *services.QueueService) *WSHandler {
	return &WSHandler{hub: hub, jobs: jobs, queue: queue}
}

// HandleWS handles GET /ws/jobs/:id. It replays the buffered log, sends the
// current status, then streams live events for the job.
func (h *WSHandler) HandleWS(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.GetJob(c, id)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade WS: %v", err)
		return
	}

	// Register before replaying so no live line slips between the two. The
	// hub serializes replay and broadcast writes; sequence numbers let
	// clients drop the occasional duplicate.
	h.hub.RegisterClient(conn, id)

	lines, err := h.queue.LogLines(c, id, 0, -1)
	if err != nil {
		log.Printf("WS: failed to replay log for job %s: %v", id, err)
	}
	for i, line := range lines {
		h.sendEvent(conn, models.JobEvent{
			Type:  models.EventLog,
			JobID: id,
			Line:  line,
			Seq:   int64(i) + 1,
		})
	}

	h.sendEvent(conn, models.JobEvent{
		Type:     models.EventStatus,
		JobID:    id,
		Status:   job.Status,
		WorkerID: job.WorkerID,
		Attempt:  job.Attempts,
		ExitCode: job.ExitCode,
		Error:    job.Error,
		LogKey:   job.LogKey,
		At:       time.Now().UTC(),
	})

	// Read only to detect disconnects; clients never send data.
	go func() {
		defer h.hub.UnregisterClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *WSHandler) sendEvent(conn *websocket.Conn, event models.JobEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("WS: failed to marshal event: %v", err)
		return
	}
	h.hub.SendTo(conn, data)
}
