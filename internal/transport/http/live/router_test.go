package livehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"perpfire/internal/types"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Start() error { return m.Called().Error(0) }
func (m *mockEngine) Stop()        { m.Called() }
func (m *mockEngine) State() types.BotState {
	return m.Called().Get(0).(types.BotState)
}
func (m *mockEngine) Config() types.BotConfig {
	return m.Called().Get(0).(types.BotConfig)
}
func (m *mockEngine) ApplyPatch(patch map[string]any) (types.BotConfig, error) {
	args := m.Called(patch)
	return args.Get(0).(types.BotConfig), args.Error(1)
}
func (m *mockEngine) History(page, pageSize int) ([]types.TradeRecord, types.HistoryStats, int) {
	args := m.Called(page, pageSize)
	return args.Get(0).([]types.TradeRecord), args.Get(1).(types.HistoryStats), args.Int(2)
}
func (m *mockEngine) Balances(ctx context.Context) map[string]decimal.Decimal {
	return m.Called().Get(0).(map[string]decimal.Decimal)
}

func setupRouter(eng BotEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewRouter(eng, nil).Register(r.Group("/bot"))
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doReq(t *testing.T, r *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

// /bot/status 在空状态下也返回 200, 余额缺失时给空 map。
func TestStatusNeverFails(t *testing.T) {
	eng := new(mockEngine)
	eng.On("State").Return(types.NewState())
	eng.On("Config").Return(types.DefaultBotConfig())
	eng.On("Balances").Return(map[string]decimal.Decimal{})

	code, env := doReq(t, setupRouter(eng), http.MethodGet, "/bot/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	var data struct {
		State    types.BotState             `json:"state"`
		Balances map[string]decimal.Decimal `json:"balances"`
		Logs     []string                   `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, types.StatusIdle, data.State.Status)
	assert.NotNil(t, data.Balances)
}

func TestStartStopIdempotent(t *testing.T) {
	eng := new(mockEngine)
	eng.On("Start").Return(nil).Twice()
	eng.On("Stop").Twice()
	r := setupRouter(eng)

	for i := 0; i < 2; i++ {
		code, env := doReq(t, r, http.MethodPost, "/bot/start", "")
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, env.Success)
	}
	for i := 0; i < 2; i++ {
		code, env := doReq(t, r, http.MethodPost, "/bot/stop", "")
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, env.Success)
	}
	eng.AssertExpectations(t)
}

func TestPatchConfig(t *testing.T) {
	eng := new(mockEngine)
	patched := types.DefaultBotConfig()
	patched.Leverage = 15
	eng.On("ApplyPatch", mock.Anything).Return(patched, nil)
	r := setupRouter(eng)

	code, env := doReq(t, r, http.MethodPatch, "/bot/config", `{"leverage":15}`)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	var cfg types.BotConfig
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	assert.Equal(t, 15, cfg.Leverage)
}

func TestPatchConfigRejectsBadBody(t *testing.T) {
	eng := new(mockEngine)
	r := setupRouter(eng)
	code, env := doReq(t, r, http.MethodPatch, "/bot/config", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Message)
}

func TestHistoryPagination(t *testing.T) {
	eng := new(mockEngine)
	rows := []types.TradeRecord{{Symbol: "BTC/USDT", Reason: types.CloseTP1}}
	eng.On("History", 2, 5).Return(rows, types.HistoryStats{TotalTrades: 11}, 11)
	r := setupRouter(eng)

	code, env := doReq(t, r, http.MethodGet, "/bot/history?page=2&pageSize=5", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	var data struct {
		Trades []types.TradeRecord `json:"trades"`
		Total  int                 `json:"total"`
		Page   int                 `json:"page"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 11, data.Total)
	assert.Equal(t, 2, data.Page)
	assert.Len(t, data.Trades, 1)
}

func TestDecisionsUnavailable(t *testing.T) {
	eng := new(mockEngine)
	r := setupRouter(eng)
	code, env := doReq(t, r, http.MethodGet, "/bot/decisions", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.Success)
}
