package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/tindecisos/internal/errors"
)

func TestMapCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"gorm not found", gorm.ErrRecordNotFound, codes.NotFound},
		{"doc not found", fmt.Errorf("get: %w", svcErr.ErrNotFound), codes.NotFound},
		{"bad credentials", svcErr.ErrAuthInvalid, codes.Unauthenticated},
		{"not allowed", svcErr.ErrAuthDenied, codes.PermissionDenied},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"other", errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, status.Code(svcErr.Map(tc.err)))
		})
	}
	assert.Nil(t, svcErr.Map(nil))
}

func TestFromStatusRoundTrip(t *testing.T) {
	for _, sentinel := range []error{svcErr.ErrNotFound, svcErr.ErrAuthInvalid, svcErr.ErrAuthDenied} {
		back := svcErr.FromStatus(svcErr.Map(sentinel))
		assert.True(t, errors.Is(back, sentinel), "expected %v, got %v", sentinel, back)
	}

	plain := errors.New("not a status")
	assert.Equal(t, plain, svcErr.FromStatus(plain))
}

func TestPersistenceWrapsBoth(t *testing.T) {
	cause := errors.New("connection reset")
	err := svcErr.Persistence("update session", cause)

	assert.True(t, errors.Is(err, svcErr.ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "update session")
	assert.Nil(t, svcErr.Persistence("noop", nil))
}
