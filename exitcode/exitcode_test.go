package exitcode_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/byte4ever/secure_backup/config"
	"github.com/byte4ever/secure_backup/exitcode"
	"github.com/byte4ever/secure_backup/fsys"
	"github.com/byte4ever/secure_backup/mirror"
)

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "usage", err: fmt.Errorf("x: %w", exitcode.ErrUsage), want: 2},
		{name: "config", err: fmt.Errorf("x: %w", config.ErrInvalid), want: 2},
		{name: "mismatch", err: exitcode.ErrMismatch, want: 3},
		{name: "partial", err: fmt.Errorf("x: %w", mirror.ErrPartial), want: 3},
		{name: "interrupted", err: fmt.Errorf("x: interrupted: %w", context.Canceled), want: 130},
		{
			name: "partial and interrupted",
			err:  fmt.Errorf("x: %w: %w", mirror.ErrPartial, context.Canceled),
			want: 3,
		},
		{name: "not found", err: fsys.Classify("open", "/x", fsys.ErrNotFound), want: 1},
		{name: "generic", err: errors.New("boom"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, exitcode.Code(tt.err))
		})
	}
}
