package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"model-sweep/internal/model"
	"model-sweep/internal/service"
	"model-sweep/internal/store"

	"github.com/gin-gonic/gin"
)

type SweepRunner interface {
	Run(ctx context.Context, req service.SweepRequest) (*service.SweepOutcome, error)
}

type SweepReader interface {
	List(ctx context.Context, limit int) ([]model.SweepRun, error)
	Get(ctx context.Context, sweepID string) (*model.SweepRun, []model.RunRecord, error)
}

type SweepHandler struct {
	runner SweepRunner
	reader SweepReader
}

// NewSweepHandler reader 为 nil 表示未启用数据库，查询接口返回 503
func NewSweepHandler(runner SweepRunner, reader SweepReader) *SweepHandler {
	return &SweepHandler{runner: runner, reader: reader}
}

// RunSweep 同步执行一次 sweep：训练全部配置 -> 选出最佳 -> 保存模型
func (h *SweepHandler) RunSweep(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep runner not initialized"})
		return
	}

	var req service.SweepRequest
	// 允许空 body，全部沿用配置文件
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 客户端断开不中断 sweep，否则会留下不完整的结果
	outcome, err := h.runner.Run(context.WithoutCancel(c.Request.Context()), req)
	switch {
	case service.IsNoSuccessfulRun(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "outcome": outcome})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "outcome": outcome})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":       outcome,
		"best_run_id":   outcome.Result.BestRunID,
		"best_accuracy": outcome.Result.BestMetric,
		"artifact_path": outcome.Result.ArtifactPath,
	})
}

// ListSweeps 最近的 sweep 列表
func (h *SweepHandler) ListSweeps(c *gin.Context) {
	if h.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not enabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	sweeps, err := h.reader.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sweeps": sweeps,
		"total":  len(sweeps),
	})
}

// GetSweep 单个 sweep 及其全部 run
func (h *SweepHandler) GetSweep(c *gin.Context) {
	if h.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not enabled"})
		return
	}

	sweep, runs, err := h.reader.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrSweepNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sweep": sweep,
		"runs":  runs,
	})
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
