package main

import (
	"github.com/gin-gonic/gin"

	"github.com/opencouncil/scribe/errors"
	"github.com/opencouncil/scribe/pipeline"
	"github.com/opencouncil/scribe/scheduler"
	"github.com/opencouncil/scribe/server"
	"github.com/opencouncil/scribe/validation"
)

// submitTask accepts a council-recording request, admits it to the
// scheduler, and answers synchronously with the admission state. The result
// always arrives out-of-band at the request's delivery URL.
func submitTask(sched *scheduler.Scheduler, p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pipeline.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			server.RespondWithError(c, errors.InvalidInput("", "request body must be valid JSON"))
			return
		}
		if err := validation.Validate(req); err != nil {
			server.RespondWithError(c, err)
			return
		}

		adm, err := sched.RunTask(pipeline.TaskType, p.Task(req), req.DeliveryURL)
		if err != nil {
			server.RespondWithError(c, errors.Conflict(err.Error()))
			return
		}
		server.RespondAccepted(c, adm)
	}
}

// listTasks reports all live task records.
func listTasks(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		server.RespondOK(c, gin.H{"tasks": sched.Tasks()})
	}
}
