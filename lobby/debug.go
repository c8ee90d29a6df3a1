package lobby

import (
	"encoding/json"
	"net/http"
)

// NewDebugMux 本地调试接口：
// GET /metrics      运行指标
// GET /lobby/state  会话状态快照（经循环协程取值）
// GET /healthz      存活探测
func NewDebugMux(s *Session, m *SessionMetrics) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id": s.Identity(),
			"server":  s.ServerID(),
			"metrics": m.Snapshot(),
		})
	})

	mux.HandleFunc("/lobby/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Snapshot())
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}
