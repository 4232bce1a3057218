// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package filesystem

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

type recordedCall struct {
	name string
	args map[string]any
}

// fakeInvoker replays scripted results per tool name and records every
// dispatch in order.
type fakeInvoker struct {
	calls   []recordedCall
	results map[string][]*tools.Result
}

func (f *fakeInvoker) Call(_ context.Context, name string, args map[string]any, _ ...tools.CallOption) (*tools.Result, error) {
	f.calls = append(f.calls, recordedCall{name: name, args: args})
	queue := f.results[name]
	if len(queue) == 0 {
		return &tools.Result{RequestID: "req", Success: true}, nil
	}
	next := queue[0]
	f.results[name] = queue[1:]
	return next, nil
}

func ok(data string) *tools.Result {
	return &tools.Result{RequestID: "req", Success: true, Data: data}
}

func TestReadFileSmall(t *testing.T) {
	t.Parallel()

	fake := &fakeInvoker{results: map[string][]*tools.Result{
		"get_file_info": {ok("name: hi.txt\npath: /tmp/hi.txt\nsize: 5\nisDirectory: false")},
		"read_file":     {ok("hello")},
	}}

	content, _, err := New(fake).ReadFile(context.Background(), "/tmp/hi.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)

	// Small files read in one shot without offset arguments.
	require.Len(t, fake.calls, 2)
	assert.NotContains(t, fake.calls[1].args, "offset")
}

func TestReadFileChunked(t *testing.T) {
	t.Parallel()

	fake := &fakeInvoker{results: map[string][]*tools.Result{
		"get_file_info": {ok("size: 12\nisDirectory: false")},
		"read_file":     {ok("hello"), ok(" worl"), ok("d!")},
	}}

	fs := New(fake)
	fs.chunkSize = 5

	content, _, err := fs.ReadFile(context.Background(), "/tmp/big.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world!", content)

	require.Len(t, fake.calls, 4)
	assert.Equal(t, int64(0), fake.calls[1].args["offset"])
	assert.Equal(t, int64(5), fake.calls[2].args["offset"])
	assert.Equal(t, int64(10), fake.calls[3].args["offset"])
	assert.Equal(t, int64(2), fake.calls[3].args["length"])
}

func TestReadFileRejectsDirectory(t *testing.T) {
	t.Parallel()

	fake := &fakeInvoker{results: map[string][]*tools.Result{
		"get_file_info": {ok("isDirectory: true")},
	}}

	_, _, err := New(fake).ReadFile(context.Background(), "/tmp")
	require.Error(t, err)
	assert.True(t, agberrors.IsValidation(err))
}

func TestWriteFileChunkedModes(t *testing.T) {
	t.Parallel()

	fake := &fakeInvoker{results: map[string][]*tools.Result{}}
	fs := New(fake)
	fs.chunkSize = 4

	_, err := fs.WriteFile(context.Background(), "/tmp/out.txt", "abcdefghij", ModeOverwrite)
	require.NoError(t, err)

	// First chunk carries the caller's mode, the rest append.
	require.Len(t, fake.calls, 3)
	assert.Equal(t, ModeOverwrite, fake.calls[0].args["mode"])
	assert.Equal(t, "abcd", fake.calls[0].args["content"])
	assert.Equal(t, ModeAppend, fake.calls[1].args["mode"])
	assert.Equal(t, ModeAppend, fake.calls[2].args["mode"])
	assert.Equal(t, "ij", fake.calls[2].args["content"])
}

func TestWriteFileInvalidMode(t *testing.T) {
	t.Parallel()

	fake := &fakeInvoker{results: map[string][]*tools.Result{}}
	_, err := New(fake).WriteFile(context.Background(), "/tmp/out.txt", "x", "truncate")
	require.Error(t, err)
	assert.True(t, agberrors.IsValidation(err))
	assert.Empty(t, fake.calls)
}

func TestListDirectory(t *testing.T) {
	t.Parallel()

	fake := &fakeInvoker{results: map[string][]*tools.Result{
		"list_directory": {ok("[DIR] src\n[FILE] go.mod\n\n[FILE] main.go")},
	}}

	entries, _, err := New(fake).ListDirectory(context.Background(), "/work")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].IsDirectory)
	assert.Equal(t, "src", entries[0].Name)
	assert.True(t, entries[1].IsFile)
	assert.Equal(t, "go.mod", entries[1].Name)
}

func TestGetFileInfoParsing(t *testing.T) {
	t.Parallel()

	payload := strings.Join([]string{
		"name: report.pdf",
		"path: /docs/report.pdf",
		"size: 2048",
		"isDirectory: false",
		"modified: 2025-06-01T10:00:00Z",
		"permissions: -rw-r--r--",
	}, "\n")
	fake := &fakeInvoker{results: map[string][]*tools.Result{
		"get_file_info": {ok(payload)},
	}}

	info, _, err := New(fake).GetFileInfo(context.Background(), "/docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", info.Name)
	assert.Equal(t, int64(2048), info.Size)
	assert.False(t, info.IsDirectory)
	assert.Equal(t, "-rw-r--r--", info.Mode)
}

func TestSearchFiles(t *testing.T) {
	t.Parallel()

	fake := &fakeInvoker{results: map[string][]*tools.Result{
		"search_files": {ok("/a/x.go\n\n/a/b/y.go\n")},
	}}

	matches, _, err := New(fake).SearchFiles(context.Background(), "/a", "*.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/x.go", "/a/b/y.go"}, matches)
}

func TestReadMultipleFiles(t *testing.T) {
	t.Parallel()

	payload := strings.Join([]string{
		"/tmp/a.txt: alpha",
		"---",
		"/tmp/b.txt: ",
		"line one",
		"line two",
		"---",
	}, "\n")
	fake := &fakeInvoker{results: map[string][]*tools.Result{
		"read_multiple_files": {ok(payload)},
	}}

	files, _, err := New(fake).ReadMultipleFiles(context.Background(), []string{"/tmp/a.txt", "/tmp/b.txt"})
	require.NoError(t, err)
	assert.Equal(t, "alpha", files["/tmp/a.txt"])
	assert.Equal(t, "line one\nline two", files["/tmp/b.txt"])
}
