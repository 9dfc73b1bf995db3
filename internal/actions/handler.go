// Package actions реализует HTTP API для действий и их запусков.
package actions

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"atg_engage/internal/httputil"
	"atg_engage/models"
	"atg_engage/pkg/orchestrator"
	"atg_engage/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Store: хранилище действий.
type Store interface {
	CreateAction(ctx context.Context, a models.Action) (*models.Action, error)
	GetAction(ctx context.Context, id int) (*models.Action, error)
	ListActions(ctx context.Context) ([]models.Action, error)
	UpdateAction(ctx context.Context, id int, u models.ActionUpdate) (*models.Action, error)
	DeleteAction(ctx context.Context, id int) error
}

// Runner выполняет действие на всех аккаунтах.
type Runner interface {
	RunWith(ctx context.Context, action models.Action, ro orchestrator.RunOptions) (models.RunSummary, error)
}

// RunHistory отдаёт сводки прошлых запусков.
type RunHistory interface {
	ListRuns(ctx context.Context, actionID int) ([]models.RunSummary, error)
}

// SummaryHook получает итог каждого запуска (сохранение, публикация).
type SummaryHook func(ctx context.Context, summary models.RunSummary) error

type Handler struct {
	store   Store
	runner  Runner
	history RunHistory
	hooks   []SummaryHook

	mu    sync.Mutex
	tasks map[int]context.CancelFunc
	next  int
	wg    sync.WaitGroup
}

// NewHandler создаёт обработчик. history может быть nil.
func NewHandler(store Store, runner Runner, history RunHistory, hooks ...SummaryHook) *Handler {
	return &Handler{
		store:   store,
		runner:  runner,
		history: history,
		hooks:   hooks,
		tasks:   make(map[int]context.CancelFunc),
		next:    1,
	}
}

func actionID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid action id")
		return 0, false
	}
	return id, true
}

// respondStoreError переводит ошибку хранилища в HTTP-ответ.
func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrActionNotFound) {
		httputil.RespondError(c, http.StatusNotFound, "Action not found")
		return
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg("[HANDLER] ошибка хранилища")
	httputil.RespondError(c, http.StatusInternalServerError, "Storage error")
}

// Create сохраняет новое действие.
func (h *Handler) Create(c *gin.Context) {
	var a models.Action
	if err := c.ShouldBindJSON(&a); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}
	a.ID = 0
	if err := a.Validate(); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.store.CreateAction(c.Request.Context(), a)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// List возвращает все действия.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListActions(c.Request.Context())
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get возвращает действие по id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}
	a, err := h.store.GetAction(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Update применяет частичное обновление. Отсутствующие поля не меняются.
func (h *Handler) Update(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}
	var u models.ActionUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}
	ctx := c.Request.Context()
	current, err := h.store.GetAction(ctx, id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if err := models.ApplyActionUpdate(*current, u).Validate(); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.store.UpdateAction(ctx, id, u)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete удаляет действие.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteAction(c.Request.Context(), id); err != nil {
		respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Runs возвращает историю запусков действия.
func (h *Handler) Runs(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}
	if h.history == nil {
		c.JSON(http.StatusOK, []models.RunSummary{})
		return
	}
	runs, err := h.history.ListRuns(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// Run выполняет действие синхронно и возвращает сводку.
func (h *Handler) Run(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}
	a, err := h.store.GetAction(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	log.Info().Int("action_id", id).Str("kind", string(a.Kind)).Msg("[HANDLER] синхронный запуск действия")
	summary, err := h.execute(c.Request.Context(), *a)
	if err != nil {
		respondRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Start запускает действие в фоне и сразу возвращает номер задачи.
func (h *Handler) Start(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}
	a, err := h.store.GetAction(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	taskID := h.next
	h.next++
	h.tasks[taskID] = cancel
	h.wg.Add(1)
	h.mu.Unlock()

	go func(action models.Action) {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			delete(h.tasks, taskID)
			h.mu.Unlock()
			cancel()
		}()
		summary, err := h.execute(ctx, action)
		if err != nil {
			log.Error().Err(err).Int("task_id", taskID).Int("action_id", action.ID).Msg("[HANDLER] фоновый запуск не выполнен")
			return
		}
		log.Info().Int("task_id", taskID).Str("run_id", summary.RunID).Str("state", string(summary.State)).
			Msg("[HANDLER] фоновый запуск завершён")
	}(*a)

	c.JSON(http.StatusAccepted, gin.H{"status": "запущено", "task_id": taskID})
}

// Cancel отменяет фоновую задачу task_id или все задачи, если параметр не задан.
func (h *Handler) Cancel(c *gin.Context) {
	raw := c.Query("task_id")
	h.mu.Lock()
	defer h.mu.Unlock()

	if raw == "" {
		n := len(h.tasks)
		for id, cancel := range h.tasks {
			cancel()
			delete(h.tasks, id)
		}
		c.JSON(http.StatusOK, gin.H{"status": "все задачи остановлены", "cancelled": n})
		return
	}

	id, err := strconv.Atoi(raw)
	if err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid task id")
		return
	}
	cancel, ok := h.tasks[id]
	if !ok {
		httputil.RespondError(c, http.StatusNotFound, "Task not found")
		return
	}
	cancel()
	delete(h.tasks, id)
	c.JSON(http.StatusOK, gin.H{"status": "задача остановлена", "cancelled": 1})
}

// Shutdown отменяет фоновые задачи и ждёт их завершения.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	for id, cancel := range h.tasks {
		cancel()
		delete(h.tasks, id)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// hookTimeout ограничивает обработку итога одного запуска.
const hookTimeout = 10 * time.Second

// execute запускает действие и передаёт сводку обработчикам итога.
func (h *Handler) execute(ctx context.Context, a models.Action) (models.RunSummary, error) {
	summary, err := h.runner.RunWith(ctx, a, orchestrator.RunOptions{})
	if err != nil {
		return summary, err
	}
	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
	defer cancel()
	for _, hook := range h.hooks {
		if err := hook(hookCtx, summary); err != nil {
			log.Error().Err(err).Str("run_id", summary.RunID).Msg("[HANDLER] не удалось обработать итог запуска")
		}
	}
	return summary, nil
}

func respondRunError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidAction):
		httputil.RespondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrListAccounts):
		log.Error().Err(err).Msg("[HANDLER] не удалось получить аккаунты")
		httputil.RespondError(c, http.StatusInternalServerError, "Failed to get accounts")
	default:
		httputil.RespondError(c, http.StatusInternalServerError, err.Error())
	}
}
