// internal/collect/collect_test.go
package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedOutput struct {
	stdout string
	stderr string
	err    error
}

// fakeRunner answers commands from a table keyed by "name arg1 arg2..."
type fakeRunner struct {
	missing map[string]bool
	outputs map[string]cannedOutput
	calls   []string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, key)
	out, ok := f.outputs[key]
	if !ok {
		return nil, []byte("unexpected command"), fmt.Errorf("no canned output for %q", key)
	}
	return []byte(out.stdout), []byte(out.stderr), out.err
}

type stubCollector struct {
	val []string
	err error
}

func (s stubCollector) Name() string { return "stub" }

func (s stubCollector) Collect(ctx context.Context) ([]string, error) { return s.val, s.err }

func TestGather(t *testing.T) {
	ctx := context.Background()

	got, err := Gather[[]string](ctx, stubCollector{val: []string{"a"}}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	// Not available is never fatal
	got, err = Gather[[]string](ctx, stubCollector{err: fmt.Errorf("%w: gone", ErrNotAvailable)}, true)
	require.NoError(t, err)
	assert.Nil(t, got)

	boom := errors.New("boom")
	got, err = Gather[[]string](ctx, stubCollector{val: []string{"partial"}, err: boom}, false)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Gather[[]string](ctx, stubCollector{err: boom}, true)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stub")
}

func TestMissingToolIsNotAvailable(t *testing.T) {
	r := &fakeRunner{missing: map[string]bool{"journalctl": true, "sensors": true, "smartctl": true, "ipmitool": true}}
	ctx := context.Background()

	_, err := (&Journal{Runner: r}).Collect(ctx)
	assert.ErrorIs(t, err, ErrNotAvailable)
	_, err = (&Sensors{Runner: r}).Collect(ctx)
	assert.ErrorIs(t, err, ErrNotAvailable)
	_, err = (&SMART{Runner: r}).Collect(ctx)
	assert.ErrorIs(t, err, ErrNotAvailable)
	_, err = (&IPMI{Runner: r}).Collect(ctx)
	assert.ErrorIs(t, err, ErrNotAvailable)
	assert.Empty(t, r.calls)
}
