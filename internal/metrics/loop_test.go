package metrics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/iceman/internal/errors"
	"codeberg.org/mutker/iceman/internal/logger"
	"codeberg.org/mutker/iceman/internal/sensor"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	drains atomic.Int64
	rate   float64
}

func (f *fakeCounter) DrainAndEstimate() float64 {
	f.drains.Add(1)
	return f.rate
}

func (f *fakeCounter) CurrentRate() float64 { return f.rate }

func fixed(temp float64) sensor.Source {
	return sensor.SourceFunc(func() (sensor.Temperature, error) {
		return sensor.Temperature(temp), nil
	})
}

func failing(code errors.ErrorCode) sensor.Source {
	return sensor.SourceFunc(func() (sensor.Temperature, error) {
		return 0, errors.New().New(code)
	})
}

func newTestLoop(probe, board sensor.Source, pub Publisher) *Loop {
	return NewLoop(LoopConfig{Interval: time.Millisecond}, &fakeCounter{rate: 3000}, probe, board, pub, logger.Nop())
}

func TestLoopTickPublishesAllSamples(t *testing.T) {
	pub := &recordingPublisher{}
	l := newTestLoop(fixed(74.41), fixed(120.2), pub)

	require.NoError(t, l.Tick(context.Background(), 2994.7))

	want := []Sample{
		{Name: MetricRPM, Value: 2994, Tags: Tags{"location": "kitchen", "fan": "fan1"}},
		{Name: MetricProbeTemp, Value: 74.41, Tags: Tags{"location": "kitchen", "probe": "probe1"}},
		{Name: MetricBoardTemp, Value: 120.2, Tags: Tags{"location": "kitchen", "probe": "cpu"}},
	}
	if diff := cmp.Diff(want, pub.Samples(), cmpopts.IgnoreFields(Sample{}, "Timestamp")); diff != "" {
		t.Errorf("published samples mismatch (-want +got):\n%s", diff)
	}
}

func TestLoopTickCustomTags(t *testing.T) {
	pub := &recordingPublisher{}
	l := NewLoop(LoopConfig{Location: "garage", Fan: "fan2", Probe: "probe7"},
		&fakeCounter{}, fixed(70), fixed(100), pub, logger.Nop())

	require.NoError(t, l.Tick(context.Background(), 0))

	got := pub.Samples()
	require.Len(t, got, 3)
	assert.Equal(t, Tags{"location": "garage", "fan": "fan2"}, got[0].Tags)
	assert.Equal(t, Tags{"location": "garage", "probe": "probe7"}, got[1].Tags)
	assert.Equal(t, Tags{"location": "garage", "probe": "cpu"}, got[2].Tags)
}

func TestLoopTickStopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		name      string
		probe     sensor.Source
		board     sensor.Source
		pub       *recordingPublisher
		code      errors.ErrorCode
		published []string
	}{
		{
			name:      "probe read fails",
			probe:     failing(errors.ErrSensorNotFound),
			board:     fixed(100),
			pub:       &recordingPublisher{},
			code:      errors.ErrSensorNotFound,
			published: []string{MetricRPM},
		},
		{
			name:      "board read fails",
			probe:     fixed(70),
			board:     failing(errors.ErrSensorIO),
			pub:       &recordingPublisher{},
			code:      errors.ErrSensorIO,
			published: []string{MetricRPM, MetricProbeTemp},
		},
		{
			name:      "rpm publish fails",
			probe:     fixed(70),
			board:     fixed(100),
			pub:       &recordingPublisher{err: errors.New().New(errors.ErrPublishStatus)},
			code:      errors.ErrPublishStatus,
			published: nil,
		},
		{
			name:      "probe publish fails",
			probe:     fixed(70),
			board:     fixed(100),
			pub:       &recordingPublisher{err: errors.New().New(errors.ErrPublishNetwork), failOn: MetricProbeTemp},
			code:      errors.ErrPublishNetwork,
			published: []string{MetricRPM},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoop(tt.probe, tt.board, tt.pub)

			err := l.Tick(context.Background(), 100)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code))

			var names []string
			for _, s := range tt.pub.Samples() {
				names = append(names, s.Name)
			}
			assert.Equal(t, tt.published, names)
		})
	}
}

func TestLoopTickLocalSinksSurviveRemoteOutage(t *testing.T) {
	remote := &recordingPublisher{err: errors.New().New(errors.ErrPublishNetwork)}
	local := &recordingPublisher{}
	l := NewLoop(LoopConfig{}, &fakeCounter{}, fixed(70), fixed(100), remote, logger.Nop(),
		WithLocalPublisher(local))

	err := l.Tick(context.Background(), 1200)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrPublishNetwork))

	assert.Empty(t, remote.Samples())
	want := []Sample{
		{Name: MetricRPM, Value: 1200, Tags: Tags{"location": "kitchen", "fan": "fan1"}},
		{Name: MetricProbeTemp, Value: 70, Tags: Tags{"location": "kitchen", "probe": "probe1"}},
		{Name: MetricBoardTemp, Value: 100, Tags: Tags{"location": "kitchen", "probe": "cpu"}},
	}
	if diff := cmp.Diff(want, local.Samples(), cmpopts.IgnoreFields(Sample{}, "Timestamp")); diff != "" {
		t.Errorf("local samples mismatch (-want +got):\n%s", diff)
	}
}

func TestLoopTickRemoteErrorWinsOverLaterSensorError(t *testing.T) {
	remote := &recordingPublisher{err: errors.New().New(errors.ErrPublishStatus)}
	local := &recordingPublisher{}
	l := NewLoop(LoopConfig{}, &fakeCounter{}, fixed(70), failing(errors.ErrSensorIO), remote, logger.Nop(),
		WithLocalPublisher(local))

	err := l.Tick(context.Background(), 0)
	assert.True(t, errors.HasCode(err, errors.ErrPublishStatus))

	// The board read failed, so only rpm and probe reached the local sink.
	assert.Len(t, local.Samples(), 2)
}

func TestLoopTickLocalFailureDoesNotFailRound(t *testing.T) {
	remote := &recordingPublisher{}
	local := &recordingPublisher{err: errors.New().New(ErrTransactionFailed)}
	l := NewLoop(LoopConfig{}, &fakeCounter{}, fixed(70), fixed(100), remote, logger.Nop(),
		WithLocalPublisher(local))

	require.NoError(t, l.Tick(context.Background(), 0))
	assert.Len(t, remote.Samples(), 3)
}

func TestLoopRunKeepsGoingAfterFailedTick(t *testing.T) {
	pub := &recordingPublisher{}
	counter := &fakeCounter{rate: 600}

	var reads atomic.Int64
	probe := sensor.SourceFunc(func() (sensor.Temperature, error) {
		if reads.Add(1) == 1 {
			return 0, errors.New().New(errors.ErrSensorIO)
		}
		return 70, nil
	})

	l := NewLoop(LoopConfig{Interval: time.Millisecond}, counter, probe, fixed(100), pub, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, s := range pub.Samples() {
			if s.Name == MetricBoardTemp {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.GreaterOrEqual(t, counter.drains.Load(), int64(2))
}

func TestNewLoopDefaults(t *testing.T) {
	l := NewLoop(LoopConfig{}, &fakeCounter{}, fixed(0), fixed(0), Fanout{}, logger.Nop())

	assert.Equal(t, DefaultInterval, l.cfg.Interval)
	assert.Equal(t, DefaultLocation, l.cfg.Location)
	assert.Equal(t, DefaultFan, l.cfg.Fan)
	assert.Equal(t, DefaultProbe, l.cfg.Probe)
}
