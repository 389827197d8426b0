package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONFile(t *testing.T) {
	t.Chdir(t.TempDir())

	log := NewLogger()
	log.Info("TEST", "hello from the suite")
	log.LogLedger("DEBIT", "user-1", "url -2")
	log.Close()

	name := filepath.Join("logs", "invite-service-"+time.Now().Format("2006-01-02")+".log")
	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())

	var found bool
	for _, entry := range entries {
		if entry.Category == "TEST" {
			found = true
			assert.Equal(t, "INFO", entry.Level)
			assert.Equal(t, "hello from the suite", entry.Message)
			assert.NotEmpty(t, entry.Timestamp)
		}
	}
	assert.True(t, found, "expected a TEST entry in %s", name)
}

func TestZeroValueLoggerSkipsFile(t *testing.T) {
	t.Chdir(t.TempDir())

	// A zero-value logger has no file sink and must not create one.
	log := &Logger{}
	log.Info("TEST", "terminal only")
	log.Close()

	_, err := os.Stat("logs")
	assert.True(t, os.IsNotExist(err))
}
