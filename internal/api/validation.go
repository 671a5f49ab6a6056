package api

import (
	"fmt"
	"regexp"
)

const (
	maxCommandBytes = 64 * 1024
	maxHistoryLimit = 1000
)

var (
	// sessionIDPattern matches the ids handed out on creation (uuids) and
	// nothing that could smuggle path or query syntax.
	sessionIDPattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,63}$`)
	challengeIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
)

// ValidateSessionID rejects ids that cannot belong to any session.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

func validateCreateSessionRequest(req createSessionRequest) error {
	if req.Challenge == "" {
		return fmt.Errorf("challenge is required")
	}
	if !challengeIDPattern.MatchString(req.Challenge) {
		return fmt.Errorf("challenge must contain only lowercase letters, numbers, hyphens and underscores")
	}
	return nil
}

// validateExecuteRequest checks the body shape only; an unusable session id
// is answered in-band by handleExecute.
func validateExecuteRequest(req executeRequest) error {
	if len(req.Command) > maxCommandBytes {
		return fmt.Errorf("command is too large (max %d bytes)", maxCommandBytes)
	}
	return nil
}

func validateHistoryLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	if limit > maxHistoryLimit {
		return fmt.Errorf("limit must not exceed %d", maxHistoryLimit)
	}
	return nil
}
