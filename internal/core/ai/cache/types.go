package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pantry-chef/internal/pkg/common"
)

// ErrNotFound 查無新鮮的快取條目
var ErrNotFound = errors.New("cache entry not found")

// Dish 模型建議的一道菜，欄位由模型決定，只保證盡力解析
type Dish map[string]any

// Name 回傳菜名，缺少或不是字串時回傳空字串
func (d Dish) Name() string {
	name, _ := d["name"].(string)
	return name
}

// Image 回傳已解析的圖片路徑
func (d Dish) Image() string {
	img, _ := d["image"].(string)
	return img
}

// Response 快取內容：成功時為菜色列表，失敗時為錯誤訊息
type Response struct {
	Dishes []Dish
	Error  string
}

// Failed 是否為錯誤紀錄
func (r Response) Failed() bool {
	return r.Error != ""
}

// SuccessResponse 建立成功的回應
func SuccessResponse(dishes []Dish) Response {
	if dishes == nil {
		dishes = []Dish{}
	}
	return Response{Dishes: dishes}
}

// ErrorResponse 建立錯誤紀錄
func ErrorResponse(err error) Response {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Response{Error: msg}
}

// MarshalJSON 成功時輸出陣列，失敗時輸出 {"error": "..."}
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(map[string]string{"error": r.Error})
	}
	dishes := r.Dishes
	if dishes == nil {
		dishes = []Dish{}
	}
	return json.Marshal(dishes)
}

// UnmarshalJSON 依形狀區分：陣列為菜色列表，含 error 鍵的物件為錯誤紀錄
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw any
	if err := common.ParseJSONBytes(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case []any:
		dishes := make([]Dish, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				dishes = append(dishes, Dish(obj))
			}
		}
		*r = Response{Dishes: dishes}
	case map[string]any:
		msg, _ := v["error"].(string)
		if msg == "" {
			if e, ok := v["error"]; ok && e != nil {
				msg = fmt.Sprint(e)
			}
		}
		if msg == "" {
			return fmt.Errorf("cache payload object without error key")
		}
		*r = Response{Error: msg}
	default:
		return fmt.Errorf("unexpected cache payload type %T", raw)
	}
	return nil
}

// Entry 一筆建議快取
type Entry struct {
	Fingerprint string
	Response    Response
	CreatedAt   time.Time
}

// Store 建議快取儲存介面
//
// Put 在 staleAfter 內為 insert-if-absent：相同 fingerprint 的條目仍在 staleAfter 內時保留舊值並回傳
// inserted=false；條目早於 now-staleAfter 時由新值取代。staleAfter <= 0 時永不取代。
type Store interface {
	// Lookup 取得 created_at >= now-maxAge 的條目，否則回傳 ErrNotFound
	Lookup(ctx context.Context, fingerprint string, maxAge time.Duration) (*Entry, error)

	// Put 寫入新條目，只取代早於 staleAfter 的舊條目
	Put(ctx context.Context, fingerprint string, resp Response, staleAfter time.Duration) (bool, error)

	// Sweep 刪除存在時間超過 retention 的條目
	Sweep(ctx context.Context, retention time.Duration) (int64, error)

	// Close 釋放資源
	Close() error
}

// Clock 可注入的時間來源
type Clock func() time.Time
