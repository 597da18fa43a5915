package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{ErrTokenExpired, KindAuthentication},
		{ErrForbidden, KindAuthorization},
		{fmt.Errorf("join: %w", ErrRoomNotFound), KindNotFound},
		{ErrContentTooLong, KindValidation},
		{ErrQueueFull, KindResourceExhausted},
		{Persistence("create message", errors.New("disk full")), KindPersistence},
		{ErrDuplicateSession, KindConflict},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			require.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestNormalizeContent(t *testing.T) {
	t.Run("trims surrounding whitespace", func(t *testing.T) {
		req := require.New(t)
		got, err := NormalizeContent("  hi  ", 10)
		req.NoError(err)
		req.Equal("hi", got)
	})

	t.Run("rejects blank content", func(t *testing.T) {
		_, err := NormalizeContent(" \n\t ", 10)
		require.ErrorIs(t, err, ErrEmptyContent)
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		req := require.New(t)
		_, err := NormalizeContent("héllo", 5)
		req.NoError(err)
		_, err = NormalizeContent("héllo!", 5)
		req.ErrorIs(err, ErrContentTooLong)
	})
}
