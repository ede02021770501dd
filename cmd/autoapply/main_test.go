package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autoapply-cli/cmd"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(fmt.Errorf("apply: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("writes the panic log", func(t *testing.T) {
		var (
			written  []byte
			name     string
			exitWith = -1
		)
		osWriteFile = func(n string, data []byte, _ os.FileMode) error {
			name, written = n, data
			return nil
		}
		osExit = func(code int) { exitWith = code }

		func() {
			defer handlePanic()
			panic("renderer crashed")
		}()

		assert.Equal(t, panicLogFile, name)
		assert.True(t, strings.HasPrefix(string(written), "panic: renderer crashed"))
		assert.Contains(t, string(written), "goroutine")
		assert.Equal(t, 2, exitWith)
	})

	t.Run("log write failure still exits", func(t *testing.T) {
		exitWith := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		osExit = func(code int) { exitWith = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, exitWith)
	})

	t.Run("no panic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}

func TestRunInteractive(t *testing.T) {
	t.Cleanup(resetMocks)

	var out bytes.Buffer
	in := strings.NewReader("\nversion\nquit\nversion\n")
	runInteractive(context.Background(), in, &out)

	got := out.String()
	require.Contains(t, got, "autoapply > ")
	// Once in the banner and once for the single version command before quit.
	assert.Equal(t, 2, strings.Count(got, "autoapply "+cmd.Version+"\n"))
	assert.True(t, strings.HasSuffix(got, "Exiting autoapply.\n"))
}
