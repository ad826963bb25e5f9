package marketplace

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"microturk-backend/chain"
	"microturk-backend/metric"
	"microturk-backend/models"
	"microturk-backend/services"
	auth "microturk-backend/storage/auth"
	mstore "microturk-backend/storage/marketplace"
)

const (
	RoleWorker    = "worker"
	RoleRequester = "requester"
)

// Server wires the marketplace HTTP endpoints: worker sign-in and the task/
// submission/balance/payout loop, plus the requester task-creation flow.
type Server struct {
	store               mstore.Store
	payouts             *services.PayoutService
	gateway             chain.Gateway
	qr                  *services.QRCodeService
	sessions            auth.SessionIssuer
	sessionValidator    auth.SessionValidator
	workerChallenges    *auth.ChallengeStore
	requesterChallenges *auth.ChallengeStore
	platformWallet      string
	taskPriceLamports   int64
}

// Config carries the server's collaborators and settings.
type Config struct {
	Store               mstore.Store
	Payouts             *services.PayoutService
	Gateway             chain.Gateway
	QR                  *services.QRCodeService
	Sessions            auth.SessionIssuer
	SessionValidator    auth.SessionValidator
	WorkerChallenges    *auth.ChallengeStore
	RequesterChallenges *auth.ChallengeStore
	PlatformWallet      string
	TaskPriceLamports   int64
}

// NewServer builds a Server.
func NewServer(cfg Config) *Server {
	return &Server{
		store:               cfg.Store,
		payouts:             cfg.Payouts,
		gateway:             cfg.Gateway,
		qr:                  cfg.QR,
		sessions:            cfg.Sessions,
		sessionValidator:    cfg.SessionValidator,
		workerChallenges:    cfg.WorkerChallenges,
		requesterChallenges: cfg.RequesterChallenges,
		platformWallet:      cfg.PlatformWallet,
		taskPriceLamports:   cfg.TaskPriceLamports,
	}
}

// RegisterRoutes attaches handlers to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)

	mux.HandleFunc("/api/worker/challenge", s.handleWorkerChallenge)
	mux.HandleFunc("/api/worker/signin", s.handleWorkerSignin)
	mux.HandleFunc("/api/worker/nextTask", s.authWrap(RoleWorker, s.handleNextTask))
	mux.HandleFunc("/api/worker/submission", s.authWrap(RoleWorker, s.handleSubmission))
	mux.HandleFunc("/api/worker/balance", s.authWrap(RoleWorker, s.handleBalance))
	mux.HandleFunc("/api/worker/payout", s.authWrap(RoleWorker, s.handlePayout))

	mux.HandleFunc("/api/requester/challenge", s.handleRequesterChallenge)
	mux.HandleFunc("/api/requester/signin", s.handleRequesterSignin)
	mux.HandleFunc("/api/requester/task", s.authWrap(RoleRequester, s.handleTask))
	mux.HandleFunc("/api/requester/fundingQR", s.authWrap(RoleRequester, s.handleFundingQR))
}

// Error sends a standardized error response.
func Error(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message, code))
}

// JSON sends a success envelope.
func JSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.NewSuccessResponse(payload))
}

// authWrap resolves the bearer token to a session and checks its role.
func (s *Server) authWrap(role string, next func(http.ResponseWriter, *http.Request, auth.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")
		if token == "" {
			Error(w, http.StatusUnauthorized, "authorization token required")
			return
		}
		sess, ok := s.sessionValidator.Get(r.Context(), token)
		if !ok || sess.Role != role {
			Error(w, http.StatusForbidden, "not authorized")
			return
		}
		next(w, r, sess)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, models.HealthResponse{
		Status:    "ok",
		Message:   "microturk backend is running",
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleWorkerChallenge(w http.ResponseWriter, r *http.Request) {
	s.handleChallenge(w, r, s.workerChallenges)
}

func (s *Server) handleRequesterChallenge(w http.ResponseWriter, r *http.Request) {
	s.handleChallenge(w, r, s.requesterChallenges)
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request, store *auth.ChallengeStore) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body models.ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := body.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	ch, err := store.Issue(strings.TrimSpace(body.PublicKey))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to issue challenge")
		return
	}
	JSON(w, map[string]interface{}{
		"message":    ch.Message,
		"expires_at": ch.ExpiresAt,
	})
}

func (s *Server) handleWorkerSignin(w http.ResponseWriter, r *http.Request) {
	s.handleSignin(w, r, s.workerChallenges, RoleWorker)
}

func (s *Server) handleRequesterSignin(w http.ResponseWriter, r *http.Request) {
	s.handleSignin(w, r, s.requesterChallenges, RoleRequester)
}

// handleSignin verifies the signed challenge, creates the account on first
// sign-in, and issues an opaque session token.
func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request, challenges *auth.ChallengeStore, role string) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body models.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := body.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	wallet := strings.TrimSpace(body.PublicKey)
	if !challenges.Verify(wallet, body.Signature) {
		Error(w, http.StatusForbidden, "incorrect signature")
		return
	}

	var accountID int64
	if role == RoleWorker {
		worker, err := s.store.UpsertWorker(r.Context(), wallet)
		if err != nil {
			Error(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		accountID = worker.ID
	} else {
		requester, err := s.store.UpsertRequester(r.Context(), wallet)
		if err != nil {
			Error(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		accountID = requester.ID
	}

	sess, err := s.sessions.Issue(r.Context(), role, accountID, wallet)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	JSON(w, map[string]interface{}{
		"token":      sess.Token,
		"account_id": accountID,
	})
}

func (s *Server) handleNextTask(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	task, err := s.store.NextTask(r.Context(), sess.AccountID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if task == nil {
		JSON(w, map[string]interface{}{
			"task":    nil,
			"message": "no more tasks are left for you to review",
		})
		return
	}
	JSON(w, map[string]interface{}{"task": task})
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if r.Method != http.MethodPost {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body models.SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := body.Validate(); err != nil {
		metric.SubmissionsRejected.WithLabelValues("invalid_input").Inc()
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.store.RecordSubmission(r.Context(), sess.AccountID, body.TaskID, body.OptionID)
	if err != nil {
		switch {
		case errors.Is(err, mstore.ErrDuplicateSubmission):
			metric.SubmissionsRejected.WithLabelValues("duplicate").Inc()
		case errors.Is(err, mstore.ErrInvalidTask), errors.Is(err, mstore.ErrInvalidOption):
			metric.SubmissionsRejected.WithLabelValues("invalid_task").Inc()
		}
		s.storeError(w, err)
		return
	}
	metric.SubmissionsTotal.Inc()

	JSON(w, map[string]interface{}{
		"amount":    res.Submission.AmountLamports,
		"balance":   res.Balance,
		"next_task": res.NextTask,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	bal, err := s.store.GetBalance(r.Context(), sess.AccountID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	JSON(w, bal)
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	switch r.Method {
	case http.MethodPost:
		payout, err := s.payouts.RequestPayout(r.Context(), sess.AccountID)
		if err != nil {
			if errors.Is(err, chain.ErrRejected) {
				// Reserved funds were already refunded; tell the caller the
				// transfer did not go out.
				Error(w, http.StatusBadGateway, "transfer rejected by chain gateway")
				return
			}
			s.storeError(w, err)
			return
		}
		JSON(w, map[string]interface{}{
			"payout_id": payout.ID,
			"amount":    payout.AmountLamports,
			"status":    payout.Status,
		})
	case http.MethodGet:
		idRaw := r.URL.Query().Get("id")
		id, err := strconv.ParseInt(idRaw, 10, 64)
		if err != nil || id <= 0 {
			Error(w, http.StatusBadRequest, "id must be a positive integer")
			return
		}
		payout, err := s.store.GetPayout(r.Context(), id)
		if err != nil {
			s.storeError(w, err)
			return
		}
		if payout.WorkerID != sess.AccountID {
			Error(w, http.StatusNotFound, mstore.ErrPayoutNotFound.Error())
			return
		}
		JSON(w, payout)
	default:
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTask serves POST (create, after verifying the on-chain payment) and
// GET (per-option submission stats) for requesters.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTask(w, r, sess)
	case http.MethodGet:
		s.handleTaskStats(w, r, sess)
	default:
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var body models.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := body.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	// The payment must come from the requester's own wallet, to the platform
	// wallet, for exactly the configured task price.
	if err := s.gateway.VerifyPayment(r.Context(), strings.TrimSpace(body.PaymentRef), sess.Wallet, s.platformWallet, s.taskPriceLamports); err != nil {
		if errors.Is(err, chain.ErrPaymentInvalid) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		Error(w, http.StatusBadGateway, "payment verification unavailable")
		return
	}

	title := strings.TrimSpace(body.Title)
	if title == "" {
		title = "Select the most clickable thumbnail"
	}
	urls := make([]string, 0, len(body.Options))
	for _, o := range body.Options {
		urls = append(urls, strings.TrimSpace(o.ImageURL))
	}

	task, err := s.store.CreateTask(r.Context(), sess.AccountID, title, s.taskPriceLamports, strings.TrimSpace(body.PaymentRef), urls)
	if err != nil {
		s.storeError(w, err)
		return
	}
	JSON(w, map[string]interface{}{"task_id": task.ID})
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	idRaw := r.URL.Query().Get("taskId")
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "taskId must be a positive integer")
		return
	}
	stats, err := s.store.TaskStats(r.Context(), sess.AccountID, id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	JSON(w, map[string]interface{}{"options": stats})
}

// handleFundingQR returns a PNG QR code encoding the platform wallet address
// and task price for the requester payment flow.
func (s *Server) handleFundingQR(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if r.Method != http.MethodGet {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	png, err := s.qr.GenerateQRCode(s.platformWallet, strconv.FormatInt(s.taskPriceLamports, 10))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to generate QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// storeError maps storage sentinel errors to HTTP statuses. Unknown errors
// are storage unavailability, surfaced as retryable.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mstore.ErrDuplicateSubmission):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, mstore.ErrPayoutInProgress):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, mstore.ErrInvalidTask), errors.Is(err, mstore.ErrInvalidOption):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mstore.ErrInsufficientBalance):
		Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, mstore.ErrTaskNotFound), errors.Is(err, mstore.ErrWorkerNotFound),
		errors.Is(err, mstore.ErrRequesterNotFound), errors.Is(err, mstore.ErrPayoutNotFound):
		Error(w, http.StatusNotFound, err.Error())
	default:
		Error(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	}
}
