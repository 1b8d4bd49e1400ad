package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"contentpay/internal/config"
	"contentpay/internal/gateway"
	"contentpay/internal/infrastructure/database"
	"contentpay/internal/service"
	"contentpay/pkg/response"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type apiResponse struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{}
	cfg.Kafka.Topic.PayResult = "contentpay.pay_result"
	cfg.Business.OrderTimeoutMinutes = 30
	cfg.Business.LockTTLSeconds = 30
	cfg.Business.ConfigCacheTTLSeconds = 300
	cfg.Gateway.TimeoutSeconds = 1

	return SetupRouter(service.New(db, rdb, cfg, gateway.NewMockConfirmer(true, 0)))
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *apiResponse {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(requestIDHeader))

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestContentPurchaseFlow(t *testing.T) {
	r := newTestRouter(t)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/content/payment", gin.H{
		"content_id":     10,
		"payment_type":   "coin_pay",
		"coin_price":     50,
		"original_price": 60,
		"is_permanent":   true,
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/content/access?user_id=1&content_id=10", nil)
	require.Equal(t, false, resp.Data["allowed"])

	// 金币不足时下单成功、结算失败
	resp = doJSON(t, r, http.MethodPost, "/api/v1/order/create", gin.H{
		"user_id":      1,
		"goods_type":   "content",
		"payment_mode": "coin",
		"amount":       50,
		"content_id":   10,
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	contentOrder := resp.Data["order_no"].(string)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/pay/confirm", gin.H{"order_no": contentOrder})
	require.Equal(t, response.CodeInsufficientFunds, resp.Code)

	// 充值金币
	resp = doJSON(t, r, http.MethodPost, "/api/v1/order/create", gin.H{
		"user_id":      1,
		"goods_type":   "coin",
		"payment_mode": "cash",
		"amount":       "10.00",
		"coin_amount":  100,
		"pay_method":   "alipay",
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	topUp := resp.Data["order_no"].(string)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/pay/callback", gin.H{
		"order_no":     topUp,
		"pay_status":   "success",
		"external_ref": "ali-1",
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/wallet/balance?user_id=1", nil)
	require.Equal(t, float64(100), resp.Data["coin"])

	resp = doJSON(t, r, http.MethodPost, "/api/v1/pay/confirm", gin.H{"order_no": contentOrder})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	require.Equal(t, "completed", resp.Data["status"])

	resp = doJSON(t, r, http.MethodGet, "/api/v1/content/open?user_id=1&content_id=10", nil)
	require.Equal(t, true, resp.Data["allowed"])
	require.Equal(t, true, resp.Data["owned"])

	resp = doJSON(t, r, http.MethodPost, "/api/v1/refund/execute", gin.H{"order_no": contentOrder, "amount": 10})
	require.Equal(t, response.CodeInvalidAmount, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/refund/execute", gin.H{"order_no": contentOrder, "reason": "误购"})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	require.Equal(t, "refunded", resp.Data["pay_status"])

	resp = doJSON(t, r, http.MethodGet, "/api/v1/content/access?user_id=1&content_id=10", nil)
	require.Equal(t, false, resp.Data["allowed"])

	resp = doJSON(t, r, http.MethodGet, "/api/v1/wallet/balance?user_id=1", nil)
	require.Equal(t, float64(100), resp.Data["coin"])

	resp = doJSON(t, r, http.MethodGet, "/api/v1/wallet/ledger?user_id=1", nil)
	require.Equal(t, float64(3), resp.Data["total"])
}

func TestHandlerErrors(t *testing.T) {
	r := newTestRouter(t)

	resp := doJSON(t, r, http.MethodGet, "/api/v1/wallet/balance?user_id=abc", nil)
	require.Equal(t, response.CodeParamError, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/order/detail?order_no=ORD-missing", nil)
	require.Equal(t, response.CodeNotFound, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/order/create", gin.H{
		"user_id":      1,
		"goods_type":   "content",
		"payment_mode": "cash",
		"amount":       5,
	})
	require.Equal(t, response.CodeParamError, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/content/payment?content_id=404", nil)
	require.Equal(t, response.CodeNotFound, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/pay/callback", gin.H{"order_no": "x"})
	require.Equal(t, response.CodeParamError, resp.Code)
}

func TestPhysicalOrderRoutes(t *testing.T) {
	r := newTestRouter(t)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/order/create", gin.H{
		"request_id":   "req-9",
		"user_id":      2,
		"goods_type":   "goods",
		"payment_mode": "cash",
		"amount":       "19.90",
		"goods_id":     5,
		"pay_method":   "wechat",
	})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	orderNo := resp.Data["order_no"].(string)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/pay/confirm", gin.H{"order_no": orderNo, "external_ref": "wx-1"})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	require.Equal(t, "paid", resp.Data["status"])

	resp = doJSON(t, r, http.MethodPost, "/api/v1/order/ship", gin.H{"order_no": orderNo})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/order/receipt", gin.H{"order_no": orderNo, "user_id": 3})
	require.Equal(t, response.CodePermissionDenied, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/v1/order/receipt", gin.H{"order_no": orderNo, "user_id": 2})
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	require.Equal(t, "completed", resp.Data["status"])

	resp = doJSON(t, r, http.MethodPost, "/api/v1/order/cancel", gin.H{"order_no": orderNo, "user_id": 2})
	require.Equal(t, response.CodeTerminalState, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/v1/order/list?user_id=2", nil)
	require.Equal(t, float64(1), resp.Data["total"])
}
