package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/phlu-lernkoop/interviewd/internal/chat"
	"github.com/phlu-lernkoop/interviewd/internal/netmap"
)

// File is a file-backed implementation of every store surface, for
// single-node deployments. Sessions, maps, and flags are JSON documents
// written atomically; transcripts are an append-only JSONL log per user.
type File struct {
	root string
	mu   sync.Mutex

	// DefaultGroup is assigned when a session is first read, matching the
	// Memory store's behavior.
	DefaultGroup chat.Group
}

func NewFile(root string) (*File, error) {
	if root == "" {
		return nil, errors.New("store: data dir is empty")
	}
	for _, sub := range []string{"sessions", "users", "maps", "transcripts"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", sub, err)
		}
	}
	return &File{root: root, DefaultGroup: chat.GroupChatbot}, nil
}

// sanitizeID keeps user identifiers path-safe. IDs are UUIDs in practice;
// anything else is rejected rather than escaped.
func sanitizeID(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("store: empty user id")
	}
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", fmt.Errorf("store: unsafe user id %q", userID)
		}
	}
	return userID, nil
}

func (f *File) path(kind, userID, ext string) (string, error) {
	id, err := sanitizeID(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, kind, id+ext), nil
}

func readJSONFile(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return true, nil
}

func writeJSONFileAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return writeFileAtomicSameDir(path, b, 0o644)
}

func writeFileAtomicSameDir(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp_store_*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write([]byte("\n")); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

func (f *File) Session(ctx context.Context, userID string) (chat.Session, error) {
	path, err := f.path("sessions", userID, ".json")
	if err != nil {
		return chat.Session{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var s chat.Session
	found, err := readJSONFile(path, &s)
	if err != nil {
		return chat.Session{}, err
	}
	if !found {
		s = chat.Session{UserID: userID, Group: f.DefaultGroup}
		if err := writeJSONFileAtomic(path, s); err != nil {
			return chat.Session{}, err
		}
	}
	return s, nil
}

func (f *File) SaveSession(ctx context.Context, s chat.Session) error {
	path, err := f.path("sessions", s.UserID, ".json")
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSONFileAtomic(path, s)
}

func (f *File) ReadChat(ctx context.Context, userID string) ([]chat.Turn, error) {
	path, err := f.path("transcripts", userID, ".jsonl")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return readTurnLog(path)
}

func readTurnLog(path string) ([]chat.Turn, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var turns []chat.Turn
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var t chat.Turn
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			return nil, fmt.Errorf("corrupt transcript line in %s: %w", path, err)
		}
		turns = append(turns, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}

func (f *File) LastTurn(ctx context.Context, userID string) (*chat.Turn, error) {
	turns, err := f.ReadChat(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, nil
	}
	last := turns[len(turns)-1]
	return &last, nil
}

func (f *File) SaveChat(ctx context.Context, userID string, history []chat.Turn) error {
	path, err := f.path("transcripts", userID, ".jsonl")
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, err := readTurnLog(path)
	if err != nil {
		return err
	}
	var last *chat.Turn
	if len(stored) > 0 {
		last = &stored[len(stored)-1]
	}
	delta := unsavedSuffix(history, last)
	if len(delta) == 0 {
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, t := range delta {
		line, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (f *File) MapForUser(ctx context.Context, userID string) ([]netmap.Person, error) {
	path, err := f.path("maps", userID, ".json")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var people []netmap.Person
	if _, err := readJSONFile(path, &people); err != nil {
		return nil, err
	}
	return people, nil
}

func (f *File) SaveMap(ctx context.Context, userID string, people []netmap.Person) error {
	path, err := f.path("maps", userID, ".json")
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSONFileAtomic(path, people)
}

type userFlags struct {
	FinishedInterview bool `json:"finishedInterview"`
}

func (f *File) MarkInterviewFinished(ctx context.Context, userID string) error {
	path, err := f.path("users", userID, ".json")
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSONFileAtomic(path, userFlags{FinishedInterview: true})
}

func (f *File) InterviewFinished(ctx context.Context, userID string) (bool, error) {
	path, err := f.path("users", userID, ".json")
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var flags userFlags
	if _, err := readJSONFile(path, &flags); err != nil {
		return false, err
	}
	return flags.FinishedInterview, nil
}
