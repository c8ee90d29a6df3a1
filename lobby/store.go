package lobby

import (
	"encoding/json"
	"os"
	"sync"
)

// 会话存储键名（与既有前端保持一致）
const (
	KeyToken          = "user_token"
	KeyServerID       = "selected_server_id"
	KeyUserID         = "user_id"
	KeyDisplayName    = "display_name"
	KeySpirit         = "my_spirit_value"
	KeyGameMode       = "game_mode"
	KeyOpponentID     = "opponent_id"
	KeyOpponentName   = "opponent_name"
	KeyOpponentSpirit = "opponent_spirit_value"
)

// SessionStore 会话级键值存储（外部协作方）。
// 注意：会话期间其他组件可能改写其中内容，因此身份只在启动时读取一次，
// 之后一律使用锁定值（见 Session）。
type SessionStore interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
	Clear()
}

// FileStore 基于单个 JSON 文件的 SessionStore 实现
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]string
}

// OpenFileStore 读入会话文件；文件不存在时从空状态开始
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, data: make(map[string]string)}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(b, &fs.data); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) Get(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key]
}

func (f *FileStore) Set(key, value string) {
	f.mu.Lock()
	f.data[key] = value
	f.persistLocked()
	f.mu.Unlock()
}

func (f *FileStore) Delete(key string) {
	f.mu.Lock()
	delete(f.data, key)
	f.persistLocked()
	f.mu.Unlock()
}

func (f *FileStore) Clear() {
	f.mu.Lock()
	f.data = make(map[string]string)
	f.persistLocked()
	f.mu.Unlock()
}

// persistLocked 尽力写回；失败只记日志，不影响会话继续
func (f *FileStore) persistLocked() {
	b, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		Log.Errorf("marshal session store: %v", err)
		return
	}
	if err := os.WriteFile(f.path, b, 0o600); err != nil {
		Log.Errorf("write session store %s: %v", f.path, err)
	}
}
