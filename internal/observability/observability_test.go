package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendsInArrivalOrder(t *testing.T) {
	l := NewLog()
	l.InvocationStarted("claude-code", "primary", 1, "Security")
	l.CommitRecorded("claude-code", 1, "abc1234", "[cruise] claude-code iteration 1", true)
	l.ReviewRecorded(1, "Security", "needs_changes", 2)

	records := l.Records()
	require.Len(t, records, 3)
	assert.Equal(t, KindInvocationStart, records[0].Kind)
	assert.Equal(t, KindCommit, records[1].Kind)
	assert.Equal(t, KindReview, records[2].Kind)
}

func TestLog_RecordsReturnsCopy(t *testing.T) {
	l := NewLog()
	l.InvocationStarted("claude-code", "primary", 1, "")

	records := l.Records()
	records[0].Agent = "mutated"

	assert.Equal(t, "claude-code", l.Records()[0].Agent)
}

func TestLog_StampsTimestampOnAppend(t *testing.T) {
	l := NewLog()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	l.InvocationStarted("claude-code", "primary", 1, "")
	assert.Equal(t, fixed, l.Records()[0].Timestamp)
}

func TestLog_PreservesExplicitTimestamp(t *testing.T) {
	l := NewLog()
	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.Append(Record{Kind: KindCommit, Timestamp: stamp})

	assert.Equal(t, stamp, l.Records()[0].Timestamp)
}

func TestLog_ConcurrentAppendsAllLand(t *testing.T) {
	l := NewLog()
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				l.PermissionRequested("claude-code", 1, "file_read", "/etc/hosts")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, l.Len())
}

func TestLog_HookSeesEveryRecord(t *testing.T) {
	l := NewLog()
	var seen []RecordKind
	l.Hook = func(r Record) { seen = append(seen, r.Kind) }

	l.InvocationStarted("claude-code", "primary", 1, "")
	l.InvocationFinished("claude-code", "primary", 1, "", true, "")

	assert.Equal(t, []RecordKind{KindInvocationStart, KindInvocationEnd}, seen)
}

func TestLog_CommandLineTruncatesLongPrompts(t *testing.T) {
	l := NewLog()
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	l.CommandLine("claude-code", "primary", 1, string(long), "/tmp/sandbox")

	cmd := l.Records()[0].Command
	assert.Len(t, cmd, 203) // 200 chars + "..."
}

func TestExtractSecurityFindings_ClassifiesSeverity(t *testing.T) {
	text := "Found a critical injection vulnerability in the login handler\n" +
		"High risk of credential leakage via debug logs\n" +
		"This line is about formatting and nothing else\n" +
		"Medium concern: authorization check missing on admin route"

	findings := ExtractSecurityFindings(text)
	require.Len(t, findings, 3)
	assert.Equal(t, "critical", findings[0].Severity)
	assert.Equal(t, "high", findings[1].Severity)
	assert.Equal(t, "medium", findings[2].Severity)
}

func TestExtractSecurityFindings_DefaultsToLow(t *testing.T) {
	findings := ExtractSecurityFindings("consider rotating this secret periodically")
	require.Len(t, findings, 1)
	assert.Equal(t, "low", findings[0].Severity)
}

func TestExtractSecurityFindings_EmptyInput(t *testing.T) {
	assert.Empty(t, ExtractSecurityFindings(""))
}
