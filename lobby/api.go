package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PetStatus 初始宠物状态（HTTP 协作方返回）
type PetStatus struct {
	PetName string `json:"pet_name"`
	Energy  int    `json:"energy"`
}

var apiClient = &http.Client{Timeout: 5 * time.Second}

// FetchPetStatus 拉取宠物名称与精神值。
// 失败不致命：调用方退回默认值继续进大厅。
func FetchPetStatus(ctx context.Context, baseURL string, userID UserID) (PetStatus, error) {
	url := fmt.Sprintf("%s/pet/status?user_id=%d", baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PetStatus{}, err
	}
	resp, err := apiClient.Do(req)
	if err != nil {
		return PetStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return PetStatus{}, fmt.Errorf("pet status: unexpected status %d", resp.StatusCode)
	}
	var out PetStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PetStatus{}, fmt.Errorf("pet status: decode: %w", err)
	}
	return out, nil
}
