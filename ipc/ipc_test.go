package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/memrecycle/policy"
	"github.com/dreamsxin/memrecycle/types"
)

type stubController struct {
	mu       sync.Mutex
	policy   types.Policy
	display  types.Display
	persist  error
	triggers []types.TriggerKind
}

func (s *stubController) Trigger(_ context.Context, kind types.TriggerKind) (types.CycleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, kind)
	return types.CycleResult{
		Outcome: types.OutcomeRecycled,
		Trigger: kind,
		Policy:  s.policy,
		Event:   &types.RecycleEvent{ID: "evt", ProcessName: s.policy.ProcessName, NewPID: 77},
	}, nil
}

func (s *stubController) ChangePolicy(field policy.Field, value string) (types.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := policy.ParseValue(field, value)
	if field != policy.FieldProcess && err != nil {
		return s.policy, err
	}
	switch field {
	case policy.FieldProcess:
		s.policy.ProcessName = value
	case policy.FieldInterval:
		s.policy.CheckIntervalMs = n
	case policy.FieldThreshold:
		s.policy.MemoryThresholdMB = n
	}
	if s.persist != nil {
		return s.policy, fmt.Errorf("%w: %w", policy.ErrPersistFailed, s.persist)
	}
	return s.policy, nil
}

func (s *stubController) Display() types.Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.display
	d.Policy = s.policy
	return d
}

func startServer(t *testing.T, ctrl Controller) *Client {
	t.Helper()

	// unix socket paths are length limited, keep them short
	dir, err := os.MkdirTemp("", "mr")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")

	srv, err := NewServer(context.Background(), path, ctrl, []string{"MetroTwit", "MetroTwitLoop"}, zerolog.Nop())
	require.NoError(t, err)
	srv.Serve()

	client, err := Dial(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		srv.Close()
		_, statErr := os.Stat(path)
		assert.True(t, errors.Is(statErr, os.ErrNotExist), "socket removed on close")
	})
	return client
}

func newStub() *stubController {
	return &stubController{
		policy: types.Policy{ProcessName: "MetroTwit", CheckIntervalMs: 120000, MemoryThresholdMB: 500},
		display: types.Display{
			ProcessName: "MetroTwit",
			SampleMB:    412,
			Running:     true,
			SampledAt:   time.Now(),
		},
	}
}

func TestStatus(t *testing.T) {
	client := startServer(t, newStub())

	resp, err := client.Status()
	require.NoError(t, err)
	assert.Equal(t, "MetroTwit is currently using 412 mb", resp.Line)
	assert.EqualValues(t, 412, resp.Display.SampleMB)
	assert.EqualValues(t, 500, resp.Display.Policy.MemoryThresholdMB)
}

func TestRecycleIsManual(t *testing.T) {
	stub := newStub()
	client := startServer(t, stub)

	resp, err := client.Recycle()
	require.NoError(t, err)
	assert.Equal(t, "recycled", resp.Outcome)
	require.NotNil(t, resp.Result.Event)
	assert.Equal(t, 77, resp.Result.Event.NewPID)
	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Equal(t, []types.TriggerKind{types.TriggerManual}, stub.triggers)
}

func TestSetPolicy(t *testing.T) {
	stub := newStub()
	client := startServer(t, stub)

	resp, err := client.SetPolicy("interval", "5 mins")
	require.NoError(t, err)
	assert.EqualValues(t, 300000, resp.Policy.CheckIntervalMs)
	assert.Empty(t, resp.Warning)

	_, err = client.SetPolicy("colour", "blue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")

	_, err = client.SetPolicy("threshold", "-3")
	assert.Error(t, err)

	stub.mu.Lock()
	stub.persist = errors.New("disk full")
	stub.mu.Unlock()
	resp, err = client.SetPolicy("threshold", "1 gb")
	require.NoError(t, err)
	assert.EqualValues(t, 1024, resp.Policy.MemoryThresholdMB)
	assert.Contains(t, resp.Warning, "disk full")
}

func TestChoices(t *testing.T) {
	client := startServer(t, newStub())

	resp, err := client.Choices("")
	require.NoError(t, err)
	require.Len(t, resp.Groups, len(policy.Fields))

	resp, err = client.Choices("threshold")
	require.NoError(t, err)
	require.Len(t, resp.Groups, 1)
	g := resp.Groups[0]
	assert.Equal(t, "threshold", g.Field)
	assert.Equal(t, "500 mb", g.Current)

	var selected []string
	for _, c := range g.Choices {
		if c.Selected {
			selected = append(selected, c.Label)
		}
	}
	assert.Equal(t, []string{"500 mb"}, selected)

	resp, err = client.Choices("process")
	require.NoError(t, err)
	assert.Len(t, resp.Groups[0].Choices, 2)
}

func TestDisplayLineNotRunning(t *testing.T) {
	assert.Equal(t, "MetroTwit is not running", DisplayLine(types.Display{ProcessName: "MetroTwit"}))
}
