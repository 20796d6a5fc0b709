package launcher

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestReadDebuggerURLFindsPrefixLine(t *testing.T) {
	t.Parallel()
	r := nopCloser{strings.NewReader("Starting up\nDevTools listening on ws://127.0.0.1:9222/devtools/browser/abc\nmore noise\n")}
	done := make(chan struct{})
	url, err := readDebuggerURL(r, func() { close(done) })
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", url)
	<-done
}

func TestReadDebuggerURLErrorsWhenStreamEndsFirst(t *testing.T) {
	t.Parallel()
	r := nopCloser{strings.NewReader("only noise, no prefix line\n")}
	_, err := readDebuggerURL(r, func() {})
	require.Error(t, err)
}

func TestBuildArgsAddsUserDataDirAndPort(t *testing.T) {
	t.Parallel()
	var userDataDir string
	var removeDir bool
	args := buildArgs(Options{Flags: map[string]interface{}{"headless": true}}, &userDataDir, &removeDir)
	t.Cleanup(func() { os.RemoveAll(userDataDir) })

	require.Contains(t, args, "--headless")
	require.True(t, removeDir)
	require.NotEmpty(t, userDataDir)

	found := false
	for _, a := range args {
		if strings.HasPrefix(a, "--remote-debugging-port=") {
			found = true
		}
	}
	require.True(t, found)
}
