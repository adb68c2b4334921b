package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func EvaluationLockKey(assignmentID uuid.UUID) string {
	return fmt.Sprintf("lock:evaluation:%s", assignmentID)
}

func NotificationChannel(userID uuid.UUID) string {
	return fmt.Sprintf("notifications:%s", userID)
}
