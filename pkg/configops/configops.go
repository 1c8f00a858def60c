// Package configops edits the JSON config file by dotted path without going
// through the typed Config, so unknown-to-this-binary keys survive a rewrite.
package configops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"khwaaish/pkg/config"
)

// Document is a config file decoded into generic JSON values.
type Document struct {
	path string
	root map[string]interface{}
}

// Open reads path, or the serialized defaults when the file does not exist.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err = json.Marshal(config.DefaultConfig())
	}
	if err != nil {
		return nil, err
	}

	root := map[string]interface{}{}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Document{path: path, root: root}, nil
}

func (d *Document) Get(path string) (interface{}, bool) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	var cur interface{} = d.root
	for _, key := range parts {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set assigns value at path, creating intermediate objects.
func (d *Document) Set(path string, value interface{}) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	cur := d.root
	for _, key := range parts[:len(parts)-1] {
		next, ok := cur[key]
		if !ok {
			child := map[string]interface{}{}
			cur[key] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("path segment is not object: %s", key)
		}
		cur = child
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// Save writes the document atomically and leaves the previous file at
// <path>.bak. It returns the backup path.
func (d *Document) Save() (string, error) {
	data, err := json.MarshalIndent(d.root, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return "", err
	}

	backupPath := d.path + ".bak"
	if old, err := os.ReadFile(d.path); err == nil {
		if err := os.WriteFile(backupPath, old, 0644); err != nil {
			return "", fmt.Errorf("write backup failed: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read existing config failed: %w", err)
	}

	if err := replaceFile(d.path, data); err != nil {
		return "", err
	}
	return backupPath, nil
}

// Rollback restores the file saved by the last Save.
func Rollback(configPath, backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup failed: %w", err)
	}
	return replaceFile(configPath, data)
}

func replaceFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp config failed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config failed: %w", err)
	}
	return nil
}

func splitPath(path string) ([]string, error) {
	p := strings.Trim(strings.TrimSpace(path), ".")
	if p == "" {
		return nil, fmt.Errorf("path is empty")
	}
	parts := strings.Split(p, ".")
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("invalid path: %s", path)
		}
		if part == "enable" {
			parts[i] = "enabled"
		}
	}
	return parts, nil
}

// ParseValue turns a command-line literal into a JSON value.
func ParseValue(raw string) interface{} {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && strings.Contains(v, ".") {
		return f
	}
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	if strings.Contains(v, ",") {
		items := strings.Split(v, ",")
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			out = append(out, strings.TrimSpace(item))
		}
		return out
	}
	return v
}

// SignalGateway sends SIGHUP to the gateway recorded in gateway.pid next to
// the config file. running reports whether a pid file was found.
func SignalGateway(configPath string, notRunning error) (running bool, err error) {
	pidPath := filepath.Join(filepath.Dir(configPath), "gateway.pid")
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return false, fmt.Errorf("%w (pid file not found: %s)", notRunning, pidPath)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true, fmt.Errorf("invalid gateway pid: %q", strings.TrimSpace(string(data)))
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true, fmt.Errorf("find process failed: %w", err)
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return true, fmt.Errorf("send SIGHUP failed: %w", err)
	}
	return true, nil
}
