// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package filesystem exposes the file tools of a session, plus chunked
// transfer for large files and bulk I/O through presigned context URLs.
package filesystem

import (
	"context"
	"strconv"
	"strings"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

// DefaultChunkSize slices large reads and writes. Tool outputs ride
// inside RPC envelopes, so chunks stay well under transport limits.
const DefaultChunkSize = 50 * 1024

// Write modes accepted by WriteFile.
const (
	ModeOverwrite = "overwrite"
	ModeAppend    = "append"
)

// Entry is one row of a directory listing.
type Entry struct {
	Name        string
	IsFile      bool
	IsDirectory bool
	Size        int64
}

// FileInfo describes one remote file or directory.
type FileInfo struct {
	Name        string
	Path        string
	Size        int64
	IsDirectory bool
	ModTime     string
	Mode        string
}

// FileSystem wraps the file tools of one session.
type FileSystem struct {
	invoker   tools.Invoker
	chunkSize int
}

// New creates the filesystem facade.
func New(invoker tools.Invoker) *FileSystem {
	return &FileSystem{invoker: invoker, chunkSize: DefaultChunkSize}
}

// call dispatches one file tool and converts operational failures into
// tool errors.
func (f *FileSystem) call(ctx context.Context, name string, args map[string]any) (string, string, error) {
	result, err := f.invoker.Call(ctx, name, args)
	if err != nil {
		return "", "", err
	}
	if !result.Success {
		return "", result.RequestID, agberrors.NewToolError(result.ErrorMessage, nil)
	}
	return result.Data, result.RequestID, nil
}

// ReadFile returns the full content of path, reading in chunks so
// arbitrarily large files fit through the tool transport.
func (f *FileSystem) ReadFile(ctx context.Context, path string) (string, string, error) {
	if path == "" {
		return "", "", agberrors.NewValidationError("file path cannot be empty", nil)
	}

	info, reqID, err := f.GetFileInfo(ctx, path)
	if err != nil {
		return "", reqID, err
	}
	if info.IsDirectory {
		return "", reqID, agberrors.NewValidationError(path+" is a directory", nil)
	}
	if info.Size <= int64(f.chunkSize) {
		return f.call(ctx, "read_file", map[string]any{"path": path})
	}

	var sb strings.Builder
	var offset int64
	for offset < info.Size {
		length := int64(f.chunkSize)
		if remaining := info.Size - offset; remaining < length {
			length = remaining
		}
		chunk, chunkReqID, err := f.call(ctx, "read_file", map[string]any{
			"path":   path,
			"offset": offset,
			"length": length,
		})
		if err != nil {
			return "", chunkReqID, err
		}
		reqID = chunkReqID
		sb.WriteString(chunk)
		offset += length
	}
	return sb.String(), reqID, nil
}

// WriteFile writes content to path. Content larger than the chunk size is
// split: the first chunk carries the requested mode, the rest append.
func (f *FileSystem) WriteFile(ctx context.Context, path, content, mode string) (string, error) {
	if path == "" {
		return "", agberrors.NewValidationError("file path cannot be empty", nil)
	}
	if mode == "" {
		mode = ModeOverwrite
	}
	if mode != ModeOverwrite && mode != ModeAppend {
		return "", agberrors.NewValidationError(
			"invalid write mode: "+mode+" (supported: overwrite, append)", nil)
	}

	if len(content) <= f.chunkSize {
		_, reqID, err := f.call(ctx, "write_file", map[string]any{
			"path": path, "content": content, "mode": mode,
		})
		return reqID, err
	}

	var reqID string
	for start := 0; start < len(content); start += f.chunkSize {
		end := start + f.chunkSize
		if end > len(content) {
			end = len(content)
		}
		chunkMode := ModeAppend
		if start == 0 {
			chunkMode = mode
		}
		var err error
		_, reqID, err = f.call(ctx, "write_file", map[string]any{
			"path": path, "content": content[start:end], "mode": chunkMode,
		})
		if err != nil {
			return reqID, err
		}
	}
	return reqID, nil
}

// CreateDirectory creates path, including missing parents.
func (f *FileSystem) CreateDirectory(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", agberrors.NewValidationError("directory path cannot be empty", nil)
	}
	_, reqID, err := f.call(ctx, "create_directory", map[string]any{"path": path})
	return reqID, err
}

// MoveFile renames source to destination.
func (f *FileSystem) MoveFile(ctx context.Context, source, destination string) (string, error) {
	if source == "" || destination == "" {
		return "", agberrors.NewValidationError("source and destination are required", nil)
	}
	_, reqID, err := f.call(ctx, "move_file", map[string]any{
		"source": source, "destination": destination,
	})
	return reqID, err
}

// ListDirectory returns the entries of path.
func (f *FileSystem) ListDirectory(ctx context.Context, path string) ([]Entry, string, error) {
	if path == "" {
		return nil, "", agberrors.NewValidationError("directory path cannot be empty", nil)
	}
	data, reqID, err := f.call(ctx, "list_directory", map[string]any{"path": path})
	if err != nil {
		return nil, reqID, err
	}
	return parseListing(data), reqID, nil
}

// GetFileInfo returns metadata for path.
func (f *FileSystem) GetFileInfo(ctx context.Context, path string) (*FileInfo, string, error) {
	if path == "" {
		return nil, "", agberrors.NewValidationError("file path cannot be empty", nil)
	}
	data, reqID, err := f.call(ctx, "get_file_info", map[string]any{"path": path})
	if err != nil {
		return nil, reqID, err
	}
	info := parseFileInfo(data)
	if info.Path == "" {
		info.Path = path
	}
	return info, reqID, nil
}

// SearchFiles looks for pattern under path. Matches come back one path
// per line.
func (f *FileSystem) SearchFiles(ctx context.Context, path, pattern string) ([]string, string, error) {
	if pattern == "" {
		return nil, "", agberrors.NewValidationError("search pattern cannot be empty", nil)
	}
	data, reqID, err := f.call(ctx, "search_files", map[string]any{
		"path": path, "pattern": pattern,
	})
	if err != nil {
		return nil, reqID, err
	}

	var matches []string
	for _, line := range strings.Split(data, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			matches = append(matches, line)
		}
	}
	return matches, reqID, nil
}

// ReadMultipleFiles reads several files in one tool call. The runtime
// reports them as "path: content" blocks separated by "---" lines.
func (f *FileSystem) ReadMultipleFiles(ctx context.Context, paths []string) (map[string]string, string, error) {
	if len(paths) == 0 {
		return nil, "", agberrors.NewValidationError("at least one path is required", nil)
	}
	data, reqID, err := f.call(ctx, "read_multiple_files", map[string]any{"paths": paths})
	if err != nil {
		return nil, reqID, err
	}
	return parseMultipleFiles(data), reqID, nil
}

// parseListing decodes "[DIR] name" / "[FILE] name" listing lines.
func parseListing(data string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "[DIR]"):
			entries = append(entries, Entry{
				Name:        strings.TrimSpace(strings.TrimPrefix(line, "[DIR]")),
				IsDirectory: true,
			})
		case strings.HasPrefix(line, "[FILE]"):
			entries = append(entries, Entry{
				Name:   strings.TrimSpace(strings.TrimPrefix(line, "[FILE]")),
				IsFile: true,
			})
		}
	}
	return entries
}

// parseFileInfo decodes the "key: value" lines of get_file_info.
func parseFileInfo(data string) *FileInfo {
	info := &FileInfo{}
	for _, line := range strings.Split(data, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "name":
			info.Name = value
		case "path":
			info.Path = value
		case "size":
			info.Size, _ = strconv.ParseInt(value, 10, 64)
		case "isDirectory":
			info.IsDirectory = value == "true"
		case "modified":
			info.ModTime = value
		case "permissions":
			info.Mode = value
		}
	}
	return info
}

// parseMultipleFiles decodes "path: content" blocks separated by "---".
func parseMultipleFiles(data string) map[string]string {
	files := make(map[string]string)
	var current string
	var content []string

	flush := func() {
		if current != "" {
			files[current] = strings.TrimSuffix(strings.Join(content, "\n"), "\n")
		}
		current = ""
		content = nil
	}

	for _, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		if current == "" {
			if path, rest, found := strings.Cut(line, ":"); found {
				current = strings.TrimSpace(path)
				if rest = strings.TrimPrefix(rest, " "); rest != "" {
					content = append(content, rest)
				}
				continue
			}
		}
		if current != "" {
			content = append(content, line)
		}
	}
	flush()
	return files
}
