package livehttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"perpfire/internal/logger"
	"perpfire/internal/store/decisionlog"
	"perpfire/internal/types"
)

// BotEngine 是 HTTP 层消费的引擎契约；单一引擎实例在启动时注入, 没有全局单例。
type BotEngine interface {
	Start() error
	Stop()
	State() types.BotState
	Config() types.BotConfig
	ApplyPatch(patch map[string]any) (types.BotConfig, error)
	History(page, pageSize int) ([]types.TradeRecord, types.HistoryStats, int)
	Balances(ctx context.Context) map[string]decimal.Decimal
}

// Router 运营端 /bot 路由。所有响应共用 {success, message, data} 包络, 失败也以包络返回;
// 启动失败与决策日志查询失败时状态码为 500, status 接口不返回 500。
type Router struct {
	Engine    BotEngine
	Decisions *decisionlog.Store // 可为 nil
}

func NewRouter(engine BotEngine, decisions *decisionlog.Store) *Router {
	return &Router{Engine: engine, Decisions: decisions}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.PATCH("/config", r.handlePatchConfig)
	group.GET("/history", r.handleHistory)
	group.GET("/decisions", r.handleDecisions)
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "message": msg})
}

// handleStatus 空状态也不 500；余额拉不到就给空 map。
func (r *Router) handleStatus(c *gin.Context) {
	state := r.Engine.State()
	cfg := r.Engine.Config()
	balances := r.Engine.Balances(c.Request.Context())
	ok(c, gin.H{
		"state":    state,
		"config":   cfg,
		"logs":     logger.Tail(50),
		"balances": balances,
	})
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.Engine.Start(); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, gin.H{"running": true})
}

func (r *Router) handleStop(c *gin.Context) {
	r.Engine.Stop()
	ok(c, gin.H{"running": false})
}

func (r *Router) handlePatchConfig(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, "请求体需为 JSON 对象: "+err.Error())
		return
	}
	cfg, err := r.Engine.ApplyPatch(patch)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok(c, cfg)
}

func (r *Router) handleHistory(c *gin.Context) {
	page, _ := strconv.Atoi(strings.TrimSpace(c.DefaultQuery("page", "1")))
	pageSize, _ := strconv.Atoi(strings.TrimSpace(c.DefaultQuery("pageSize", "20")))
	rows, stats, total := r.Engine.History(page, pageSize)
	if rows == nil {
		rows = []types.TradeRecord{}
	}
	ok(c, gin.H{
		"trades":   rows,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"stats":    stats,
	})
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.Decisions == nil {
		fail(c, http.StatusServiceUnavailable, "决策日志未启用")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := r.Decisions.List(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, rows)
}
