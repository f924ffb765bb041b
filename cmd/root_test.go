package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyCommand(t *testing.T) {
	t.Parallel()

	in := strings.NewReader(`{"type":"h-entry","in-reply-to":["https://them.example/1"],"like-of":"https://them.example/2","content":"agreed"}`)
	var out bytes.Buffer
	root := newRootCmd()
	root.SetIn(in)
	root.SetOut(&out)
	root.SetArgs([]string{"classify", "--target", "https://them.example/2"})

	require.NoError(t, root.ExecuteContext(context.Background()))

	var got classifyOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "reply", string(got.PostTypes[0]))
	require.ElementsMatch(t, []string{"https://them.example/1", "https://them.example/2"}, got.MentionTargets)
	require.Len(t, got.ResponseTypes, 1)
	require.Equal(t, "like", string(got.ResponseTypes[0]))
}

func TestClassifyCommandRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetIn(strings.NewReader("{"))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"classify"})

	require.Error(t, root.ExecuteContext(context.Background()))
}

func TestResolveCommand(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/post" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><div class="h-entry">
<a class="u-url" href="%s/post">permalink</a>
<p class="p-name e-content">Resolved entry</p>
<a class="p-author h-card" href="%s/me">Ann</a>
<time class="dt-published" datetime="2022-01-01T00:00:00Z">Jan 1</time>
</div></body></html>`, srv.URL, srv.URL)
	}))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"resolve", srv.URL + "/post", srv.URL + "/missing"})

	require.NoError(t, root.ExecuteContext(context.Background()))

	var got resolveOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Contains(t, got.References, srv.URL+"/post")
	require.Equal(t, "Resolved entry", got.References[srv.URL+"/post"]["name"])
	require.Contains(t, got.Failures, srv.URL+"/missing")
}

func TestResolveCommandValidatesKind(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"resolve", "https://them.example/1", "--kind", "event"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "--kind")
}
