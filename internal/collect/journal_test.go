// internal/collect/journal_test.go
package collect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const journalFixture = `{"__REALTIME_TIMESTAMP":"1734188645123456","PRIORITY":"3","_SYSTEMD_UNIT":"sshd.service","MESSAGE":"Failed password for root"}
{"__REALTIME_TIMESTAMP":"1734188646000000","SYSLOG_IDENTIFIER":"kernel","MESSAGE":[104,105]}
not json at all
{"__REALTIME_TIMESTAMP":"1734188647000000","PRIORITY":"4","MESSAGE":null}
{"PRIORITY":"4","MESSAGE":"no timestamp"}
{"__REALTIME_TIMESTAMP":"1734188648000000","PRIORITY":"x","MESSAGE":"odd priority"}
`

func TestParseJournal(t *testing.T) {
	entries := ParseJournal([]byte(journalFixture), 0)
	require.Len(t, entries, 3)

	assert.Equal(t, time.UnixMicro(1734188645123456).UTC(), entries[0].Timestamp)
	assert.Equal(t, 3, entries[0].Priority)
	assert.Equal(t, "sshd.service", entries[0].Unit)
	assert.Equal(t, "Failed password for root", entries[0].Message)

	// Byte-array message, identifier fallback, default priority
	assert.Equal(t, "hi", entries[1].Message)
	assert.Equal(t, "kernel", entries[1].Unit)
	assert.Equal(t, defaultPriority, entries[1].Priority)

	assert.Equal(t, "odd priority", entries[2].Message)
	assert.Equal(t, defaultPriority, entries[2].Priority)
	assert.Empty(t, entries[2].Unit)
}

func TestParseJournalCap(t *testing.T) {
	entries := ParseJournal([]byte(journalFixture), 2)
	assert.Len(t, entries, 2)
}

func TestJournalCollectArgs(t *testing.T) {
	r := &fakeRunner{outputs: map[string]cannedOutput{
		"journalctl --since 1 hour ago --priority=0..5 --output=json --no-pager": {stdout: journalFixture},
		"journalctl -k --since 1 hour ago --output=json --no-pager":              {stdout: ""},
	}}

	sys := &Journal{Runner: r, Since: "1 hour ago", PriorityMax: 5, MaxEntries: 500}
	entries, err := sys.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, "journal", sys.Name())

	kern := &Journal{Runner: r, Since: "1 hour ago", PriorityMax: 5, MaxEntries: 500, Kernel: true}
	entries, err = kern.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, "journal-kernel", kern.Name())
}

func TestJournalFailure(t *testing.T) {
	r := &fakeRunner{outputs: map[string]cannedOutput{
		"journalctl --since 1 hour ago --priority=0..5 --output=json --no-pager": {stderr: "Failed to open journal", err: errors.New("exit status 1")},
	}}
	_, err := (&Journal{Runner: r, Since: "1 hour ago", PriorityMax: 5}).Collect(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAvailable)
	assert.Contains(t, err.Error(), "Failed to open journal")
}
