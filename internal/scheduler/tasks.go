package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskOutboundJobDue fires when a single job's run_at arrives.
const TaskOutboundJobDue = "outbound:job_due"

// TaskOutboundQueuePass is the periodic catch-all pass over the queue.
const TaskOutboundQueuePass = "outbound:queue_pass"

// TaskOutboundRecover returns stale claims to the queue.
const TaskOutboundRecover = "outbound:recover"

// TaskRenewalsSweep runs the renewal reminder ladder.
const TaskRenewalsSweep = "renewals:sweep"

type JobDuePayload struct {
	JobID string `json:"jobId"`
}

type QueuePassPayload struct {
	Max int `json:"max"`
}

type RenewalsSweepPayload struct {
	WindowDays int `json:"windowDays"`
}

func NewJobDueTask(payload JobDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboundJobDue, data), nil
}

func ParseJobDuePayload(task *asynq.Task) (JobDuePayload, error) {
	var payload JobDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return JobDuePayload{}, err
	}
	return payload, nil
}

func NewQueuePassTask(payload QueuePassPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboundQueuePass, data), nil
}

func ParseQueuePassPayload(task *asynq.Task) (QueuePassPayload, error) {
	var payload QueuePassPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return QueuePassPayload{}, err
	}
	return payload, nil
}

func NewRecoverTask() *asynq.Task {
	return asynq.NewTask(TaskOutboundRecover, nil)
}

func NewRenewalsSweepTask(payload RenewalsSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRenewalsSweep, data), nil
}

func ParseRenewalsSweepPayload(task *asynq.Task) (RenewalsSweepPayload, error) {
	var payload RenewalsSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RenewalsSweepPayload{}, err
	}
	return payload, nil
}
