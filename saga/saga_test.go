package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct{ calls []string }

func (r *recorder) step(name string, fail error) func(context.Context) error {
	return func(context.Context) error {
		r.calls = append(r.calls, name)
		return fail
	}
}

func TestRunAllSucceed(t *testing.T) {
	rec := &recorder{}
	err := New("ok", zap.NewNop()).
		Add("a", rec.step("a", nil), rec.step("undo a", nil)).
		Add("b", rec.step("b", nil), rec.step("undo b", nil)).
		Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rec.calls)
}

func TestRunCompensatesInReverse(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	err := New("provision", zap.NewNop()).
		Add("company", rec.step("company", nil), rec.step("undo company", nil)).
		Add("identity", rec.step("identity", nil), rec.step("undo identity", nil)).
		Add("profile", rec.step("profile", boom), rec.step("undo profile", nil)).
		Run(context.Background())

	var sagaErr *Error
	require.ErrorAs(t, err, &sagaErr)
	assert.Equal(t, "profile", sagaErr.Step)
	assert.True(t, sagaErr.RolledBack())
	assert.ErrorIs(t, err, boom)

	want := []string{"company", "identity", "profile", "undo identity", "undo company"}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Fatalf("call order (-want +got):\n%s", diff)
	}
}

func TestRunReportsRollbackFailures(t *testing.T) {
	rec := &recorder{}
	err := New("x", nil).
		Add("a", rec.step("a", nil), rec.step("undo a", errors.New("stuck"))).
		Add("b", rec.step("b", nil), nil).
		Add("c", rec.step("c", errors.New("fail")), nil).
		Run(context.Background())

	var sagaErr *Error
	require.ErrorAs(t, err, &sagaErr)
	assert.False(t, sagaErr.RolledBack())
	require.Len(t, sagaErr.RollbackErrs, 1)
	assert.Contains(t, err.Error(), "rollback incomplete")
	assert.Equal(t, []string{"a", "b", "c", "undo a"}, rec.calls)
}

func TestRunCompensatesAfterCancel(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	var sawCancelled bool

	err := New("cancel", nil).
		Add("a", func(context.Context) error {
			rec.calls = append(rec.calls, "a")
			cancel()
			return nil
		}, func(ctx context.Context) error {
			sawCancelled = ctx.Err() != nil
			rec.calls = append(rec.calls, "undo a")
			return nil
		}).
		Add("b", rec.step("b", nil), nil).
		Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "undo a"}, rec.calls)
	assert.False(t, sawCancelled)
}
