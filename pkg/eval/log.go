// Copyright 2026 The Weaved Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package eval

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogEntry is one append-only evaluation-log record: a JSON-encoded
// Result plus the trace it was computed against and a wall-clock
// timestamp, framed the same way the storage engine's WAL frames
// records (CRC32 + length prefix), so a torn write at the tail is
// detected and stops replay cleanly rather than corrupting history.
type LogEntry struct {
	TraceID   uuid.UUID `json:"trace_id"`
	TenantID  uint64    `json:"tenant_id"`
	Result    Result    `json:"result"`
	WrittenAt time.Time `json:"written_at"`
}

// Log is an append-only, crash-safe record of every evaluation ever
// run, independent of the result cache (the cache may evict; the log
// never does).
type Log struct {
	mu   sync.Mutex
	file *os.File
}

func OpenLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Log{file: f}, nil
}

func (l *Log) Append(entry LogEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	crc := crc32.ChecksumIEEE(body)

	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(body)))
	binary.BigEndian.PutUint32(hdr[4:8], crc)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := l.file.Write(body); err != nil {
		return err
	}
	return l.file.Sync()
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ReplayLog reads every well-formed entry in path, invoking onEntry
// for each, and stops silently at the first truncated or
// checksum-mismatched frame (the tail of a crashed write).
func ReplayLog(path string, onEntry func(LogEntry) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	off := 0
	for off+8 <= len(data) {
		length := binary.BigEndian.Uint32(data[off : off+4])
		crc := binary.BigEndian.Uint32(data[off+4 : off+8])
		bodyStart := off + 8
		bodyEnd := bodyStart + int(length)
		if bodyEnd > len(data) {
			break
		}
		body := data[bodyStart:bodyEnd]
		if crc32.ChecksumIEEE(body) != crc {
			break
		}
		var entry LogEntry
		if err := json.Unmarshal(body, &entry); err != nil {
			break
		}
		if err := onEntry(entry); err != nil {
			return err
		}
		off = bodyEnd
	}
	return nil
}
