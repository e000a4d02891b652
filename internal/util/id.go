package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random 32-character hex id for requests, mail jobs and
// queue consumers.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
