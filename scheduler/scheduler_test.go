package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunInvokesTaskPerFiring(t *testing.T) {
	fire := make(chan time.Time)
	calls := 0
	done := make(chan error)
	go func() {
		done <- Run(context.Background(), fire, func(context.Context) error {
			calls++
			return nil
		})
	}()
	for i := 0; i < 3; i++ {
		fire <- time.Now()
	}
	close(fire)
	assert.NoError(t, <-done)
	assert.Equal(t, 3, calls)
}

func TestRunStopsOnTaskError(t *testing.T) {
	boom := errors.New("boom")
	fire := make(chan time.Time, 2)
	fire <- time.Now()
	fire <- time.Now()
	calls := 0
	err := Run(context.Background(), fire, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRunWithErrorHandler(t *testing.T) {
	boom := errors.New("boom")
	fire := make(chan time.Time, 2)
	fire <- time.Now()
	fire <- time.Now()
	close(fire)
	var handled []error
	err := Run(
		context.Background(), fire,
		func(context.Context) error { return boom },
		WithErrorHandler(func(_ context.Context, err error) { handled = append(handled, err) }),
	)
	assert.NoError(t, err)
	assert.Equal(t, []error{boom, boom}, handled)
}

func TestRunReturnsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, make(chan time.Time), func(context.Context) error {
		t.Error("task must not run")
		return nil
	})
	assert.NoError(t, err)
}

func TestNewDailyInvalidTime(t *testing.T) {
	for _, c := range [][2]int{{24, 0}, {-1, 0}, {0, 60}, {12, -5}} {
		_, err := NewDaily(c[0], c[1])
		var ite *InvalidTimeError
		if assert.True(t, errors.As(err, &ite)) {
			assert.Equal(t, c[0], ite.Hour)
			assert.Equal(t, c[1], ite.Minute)
		}
	}
	err := ScheduleDaily(context.Background(), func(context.Context) error { return nil }, 25, 0)
	assert.Error(t, err)
}

func TestNewDailyNextFiring(t *testing.T) {
	tr, err := NewDaily(7, 30, WithLocation(time.UTC))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	defer tr.Stop()
	next := tr.Next().In(time.UTC)
	assert.Equal(t, 7, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.Equal(t, 0, next.Second())
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(24*time.Hour+time.Minute)))
}

func TestScheduleDailyStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, ScheduleDaily(ctx, func(context.Context) error { return nil }, 0, 0))
}
