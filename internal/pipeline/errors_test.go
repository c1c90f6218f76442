package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRejection(t *testing.T) {
	tests := []struct {
		status int
		detail string
		want   RejectionKind
	}{
		{401, "Unauthorized", RejectUnauthorized},
		{403, "You are not allowed to create a Tweet with duplicate content.", RejectDuplicate},
		{403, "Forbidden", RejectForbidden},
		{429, "", RejectRateLimited},
		{500, "Internal error", RejectOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyRejection(tt.status, tt.detail), "status %d", tt.status)
	}
}

func TestPlatformError_Error(t *testing.T) {
	err := &PlatformError{Status: 403, Kind: RejectDuplicate, Detail: "duplicate content"}

	assert.ErrorIs(t, err, ErrPlatformRejection)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "duplicate content")
}
