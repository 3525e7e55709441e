package model

// JudgeMessage is the queue payload for judge tasks. The payload carries only
// the submission id; the worker loads everything else from the store so stale
// queue data can never override the database.
type JudgeMessage struct {
	SubmissionID string `json:"submission_id"`
}
