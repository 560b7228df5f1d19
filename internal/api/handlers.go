/**
 * @description
 * HTTP handlers for the admin dashboard: login/logout, the dashboard pages and
 * the JSON API the dashboard polls.
 *
 * @notes
 * - Every JSON response uses the `{success, data, pagination, error}` envelope.
 * - Broadcast only counts recipients; delivery is not implemented.
 */
package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultUserPageSize        = 20
	defaultTransactionPageSize = 50
	maxPageSize                = 100
	minBroadcastLength         = 5
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// AdminStore is the part of the repository the dashboard reads.
type AdminStore interface {
	Stats(ctx context.Context, now time.Time) (*domain.Stats, error)
	ListUsers(ctx context.Context, query store.UserQuery) ([]domain.User, store.Pagination, error)
	ListTransactions(ctx context.Context, query store.TransactionQuery) ([]domain.TransactionWithUser, store.Pagination, error)
	CountActiveUsers(ctx context.Context) (int64, error)
	FindAdminByUsername(ctx context.Context, username string) (*domain.AdminUser, error)
	TouchAdminLogin(ctx context.Context, adminID int64, at time.Time) error
}

// Handler holds what the admin handlers interact with.
type Handler struct {
	repo          AdminStore
	sessions      *AdminSessions
	jwtSecret     []byte
	secureCookies bool
	logger        *zap.Logger
	now           func() time.Time
}

// NewHandler creates the admin handler. secureCookies should be set when served over HTTPS.
func NewHandler(repo AdminStore, sessions *AdminSessions, jwtSecret string, secureCookies bool, logger *zap.Logger) *Handler {
	return &Handler{
		repo:          repo,
		sessions:      sessions,
		jwtSecret:     []byte(jwtSecret),
		secureCookies: secureCookies,
		logger:        logger.With(zap.String("component", "admin_api")),
		now:           time.Now,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticate(r); err != nil {
		h.render(w, "login.html")
		return
	}
	h.render(w, "dashboard.html")
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		respondWithError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	admin, err := h.repo.FindAdminByUsername(r.Context(), username)
	if err != nil {
		if !errors.Is(err, store.ErrAdminNotFound) {
			h.logger.Error("admin lookup failed", zap.String("username", username), zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		h.logger.Warn("admin login rejected", zap.String("username", username))
		respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := h.repo.TouchAdminLogin(r.Context(), admin.ID, h.now()); err != nil {
		h.logger.Warn("failed to record admin login", zap.Int64("admin_id", admin.ID), zap.Error(err))
	}

	session := h.sessions.Create(admin.ID, admin.Username)
	token, err := h.signToken(session)
	if err != nil {
		h.sessions.Revoke(session.ID)
		h.logger.Error("failed to sign admin token", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.setAuthCookies(w, token, session)
	h.logger.Info("admin signed in", zap.Int64("admin_id", admin.ID))
	respondWithJSON(w, http.StatusOK, envelope{Success: true})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		h.sessions.Revoke(cookie.Value)
	}
	h.clearAuthCookies(w)
	respondWithJSON(w, http.StatusOK, envelope{Success: true})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context(), h.now())
	if err != nil {
		h.logger.Error("failed to load stats", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{Success: true, Data: stats})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, defaultUserPageSize)
	users, pagination, err := h.repo.ListUsers(r.Context(), store.UserQuery{
		Page:   page,
		Limit:  limit,
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	})
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to load users")
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	respondWithJSON(w, http.StatusOK, envelope{Success: true, Data: users, Pagination: pagination})
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, defaultTransactionPageSize)
	query := store.TransactionQuery{Page: page, Limit: limit}

	if raw := r.URL.Query().Get("type"); raw != "" {
		txType, err := domain.ParseTransactionType(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid transaction type")
			return
		}
		query.Type = txType
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseTransactionStatus(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid transaction status")
			return
		}
		query.Status = status
	}

	txns, pagination, err := h.repo.ListTransactions(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to list transactions", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}
	if txns == nil {
		txns = []domain.TransactionWithUser{}
	}
	respondWithJSON(w, http.StatusOK, envelope{Success: true, Data: txns, Pagination: pagination})
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (h *Handler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len([]rune(strings.TrimSpace(req.Message))) < minBroadcastLength {
		respondWithError(w, http.StatusBadRequest, "Message too short")
		return
	}

	count, err := h.repo.CountActiveUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to count active users", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to prepare broadcast")
		return
	}
	respondWithJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Broadcast would be sent to " + strconv.FormatInt(count, 10) + " users",
	})
}

func (h *Handler) render(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, nil); err != nil {
		h.logger.Error("failed to render page", zap.String("page", name), zap.Error(err))
	}
}

// pageParams reads page and limit, clamping limit to maxPageSize.
func pageParams(r *http.Request, defaultLimit int) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return store.NormalizePage(page, limit, defaultLimit, maxPageSize)
}
