package profile

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ent0n29/mindstream/internal/policy"
)

// Message type names treated as plain text. Exports from Chinese-locale
// clients label text messages "文本".
var textTypeNames = []string{"文本", "text"}

// ChatMessage is one text message from a chat export.
type ChatMessage struct {
	Content   string `json:"content"`
	IsSender  bool   `json:"is_sender"`
	Timestamp int64  `json:"timestamp"`
}

type exportRecord struct {
	TypeName  string `json:"type_name"`
	Msg       string `json:"msg"`
	IsSender  int    `json:"is_sender"`
	Timestamp int64  `json:"timestamp"`
}

// ReadChatDir reads every export file below dir. See ReadChatFS.
func ReadChatDir(dir string, logger *slog.Logger) ([]ChatMessage, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("chat export dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("chat export dir %s is not a directory", dir)
	}
	return ReadChatFS(os.DirFS(dir), logger)
}

// ReadChatFS collects text messages from every file in fsys. Each file holds
// a JSON array of export records. Files that cannot be read or decoded are
// logged and skipped. Messages carrying sensitive data are dropped. The result
// is ordered by timestamp.
func ReadChatFS(fsys fs.FS, logger *slog.Logger) ([]ChatMessage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	paths, err := doublestar.Glob(fsys, "**/*", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("list chat exports: %w", err)
	}
	slices.Sort(paths)

	var (
		out     []ChatMessage
		dropped int
	)
	for _, p := range paths {
		logger.Debug("reading chat export", "file", p)
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			logger.Warn("skip unreadable chat export", "file", p, "err", err)
			continue
		}
		var records []exportRecord
		if err := json.Unmarshal(data, &records); err != nil {
			logger.Warn("skip invalid chat export", "file", p, "err", err)
			continue
		}
		for _, r := range records {
			if !slices.Contains(textTypeNames, strings.TrimSpace(r.TypeName)) {
				continue
			}
			content := strings.TrimSpace(r.Msg)
			if content == "" {
				continue
			}
			if policy.ContainsSensitive(content) {
				dropped++
				continue
			}
			out = append(out, ChatMessage{
				Content:   content,
				IsSender:  r.IsSender == 1,
				Timestamp: r.Timestamp,
			})
		}
	}

	slices.SortStableFunc(out, func(a, b ChatMessage) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	logger.Info("chat exports loaded", "files", len(paths), "messages", len(out), "dropped_sensitive", dropped)
	return out, nil
}

// ErrNoMessages is returned when an export holds nothing to analyse.
var ErrNoMessages = errors.New("no chat messages found")

const transcriptPreamble = "Below is a sample of the user's chat history. Analyse the personality, " +
	"speaking style and areas of expertise of the person. Lines tagged [sender] are the person being " +
	"analysed; lines tagged [context] are the other side of the conversation. Use the [context] lines " +
	"only to understand the [sender] lines, never analyse the other participants:\n\n"

// FormatForModel renders messages as a tagged transcript for the model.
func FormatForModel(messages []ChatMessage) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		tag := "[context]"
		if m.IsSender {
			tag = "[sender]"
		}
		lines = append(lines, tag+": "+m.Content)
	}
	return transcriptPreamble + strings.Join(lines, "\n---\n")
}
