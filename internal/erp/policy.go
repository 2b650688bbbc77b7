// Package erp consumes UserCreated events and mirrors them into the ERP
// system.
package erp

import "fmt"

// Policy decides what happens to a message that cannot be processed.
type Policy string

const (
	// PolicyDrop logs the message, acks it and moves on with the batch.
	PolicyDrop Policy = "drop"
	// PolicyDeadLetter stops the batch and rejects the message without
	// requeue, so the queue routes it to its dead-letter queue.
	PolicyDeadLetter Policy = "dead-letter"
	// PolicyRetry stops the batch and requeues the message.
	PolicyRetry Policy = "retry"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyDrop, PolicyDeadLetter, PolicyRetry:
		return p, nil
	default:
		return "", fmt.Errorf("unknown policy %q (want drop, dead-letter or retry)", s)
	}
}
