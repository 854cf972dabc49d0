package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"escrowrails/internal/amount"
	"escrowrails/internal/config"
	"escrowrails/internal/escrow"
	"escrowrails/internal/fee"
	"escrowrails/internal/hmacauth"
	"escrowrails/internal/idempotency"
	"escrowrails/internal/network"
	"escrowrails/internal/price"
)

// Engine bundles the per-chain components. One Engine exists per supported
// chain; lookups go through the registry so an unknown chainId fails hard.
type Engine struct {
	Net      network.Descriptor
	Resolver *fee.Resolver
	Gateway  *fee.Gateway
	Escrows  *escrow.Service
	Ping     func(context.Context) error
}

type Server struct {
	cfg        *config.AppConfig
	engines    map[int64]*Engine
	oracle     price.Oracle
	store      idempotency.Store
	hmac       *hmacauth.Verifier
	httpServer *http.Server
	metrics    *metricsRegistry
	log        zerolog.Logger
	dbHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, engines map[int64]*Engine, oracle price.Oracle, store idempotency.Store, log zerolog.Logger) *Server {
	verifier := &hmacauth.Verifier{
		Secret:  cfg.Service.HMACSecret,
		MaxSkew: cfg.Service.HMACClockSkew,
	}

	s := &Server{
		cfg:     cfg,
		engines: engines,
		oracle:  oracle,
		store:   store,
		hmac:    verifier,
		metrics: newMetricsRegistry(),
		log:     log.With().Str("component", "server").Logger(),
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}

	if cached, ok := oracle.(*price.CachedOracle); ok {
		cached.OnHit = func() { s.metrics.incPriceCache("hit") }
		cached.OnMiss = func() { s.metrics.incPriceCache("miss") }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/fees/calculate", s.handleCalculateFee)
	mux.HandleFunc("/api/v1/fees/validate", s.handleValidateFee)
	mux.HandleFunc("/api/v1/fees/tiers", s.handleFeeTiers)
	mux.HandleFunc("/api/v1/price/convert", s.handlePriceConvert)
	mux.Handle("/api/v1/escrows", s.hmac.Middleware(http.HandlerFunc(s.handleCreateEscrow)))
	mux.Handle("/api/v1/escrows/batch", s.hmac.Middleware(http.HandlerFunc(s.handleBatchCreate)))
	mux.Handle("/api/v1/escrows/transition", s.hmac.Middleware(http.HandlerFunc(s.handleTransition)))
	mux.HandleFunc("/api/v1/escrows/operations", s.handleOperations)
	mux.Handle("/api/v1/metrics", s.metrics.handler())
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("API listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) engineFor(chainID int64) (*Engine, error) {
	eng, ok := s.engines[chainID]
	if !ok {
		return nil, &network.UnsupportedNetworkError{ChainID: chainID}
	}
	return eng, nil
}

// statusFor maps engine error kinds onto HTTP statuses. Upstream
// unavailability is a gateway problem, never silently downgraded to a
// default value.
func statusFor(err error) int {
	var (
		invalidAmount *amount.InvalidAmountError
		unsupported   *network.UnsupportedNetworkError
		illegal       *escrow.IllegalTransitionError
		batchItem     *amount.BatchItemInvalidError
		feeUnavail    *fee.FeeUnavailableError
	)
	switch {
	case errors.As(err, &feeUnavail):
		return http.StatusBadGateway
	case errors.Is(err, price.ErrPriceUnavailable):
		return http.StatusBadGateway
	case errors.As(err, &invalidAmount):
		return http.StatusBadRequest
	case errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &batchItem):
		return http.StatusBadRequest
	case errors.As(err, &illegal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// tripleJSON is the wire form of a decomposition: exact units as decimal
// strings plus the rounded human fee.
type tripleJSON struct {
	BaseAmount    string `json:"baseAmount"`
	FeeAmount     string `json:"feeAmount"`
	TotalValue    string `json:"totalValue"`
	FeeHuman      string `json:"feeHuman"`
	DisplayNative string `json:"displayNative"`
}

func tripleToJSON(t amount.Triple, net network.Descriptor) tripleJSON {
	return tripleJSON{
		BaseAmount:    t.BaseExact.String(),
		FeeAmount:     t.FeeExact.String(),
		TotalValue:    t.TotalExact.String(),
		FeeHuman:      t.FeeHuman.String(),
		DisplayNative: amount.FormatNative(t.TotalExact, net),
	}
}

type calculateFeeRequest struct {
	ChainID     int64  `json:"chainId"`
	UserAddress string `json:"userAddress"`
	Amount      string `json:"amount"`
	IncludeUSD  bool   `json:"includeUsd"`
}

type calculateFeeResponse struct {
	FeePercentage string     `json:"feePercentage"`
	Amounts       tripleJSON `json:"amounts"`
	DisplayUSD    string     `json:"displayUsd,omitempty"`
	ChainID       int64      `json:"chainId"`
}

func (s *Server) handleCalculateFee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req calculateFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	eng, err := s.engineFor(req.ChainID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	pct, triple, err := eng.Gateway.Quote(r.Context(), req.UserAddress, req.Amount)
	if err != nil {
		s.metrics.incResolution("failed")
		s.writeError(w, err)
		return
	}
	s.metrics.incResolution("ok")

	resp := calculateFeeResponse{
		FeePercentage: pct.String(),
		Amounts:       tripleToJSON(triple, eng.Net),
		ChainID:       req.ChainID,
	}
	if req.IncludeUSD {
		// The caller asked for a reference-currency view; an unobtainable
		// price fails the request rather than rendering a made-up number.
		display, err := amount.FormatReference(r.Context(), s.oracle, triple.TotalExact, eng.Net)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.DisplayUSD = display
	}
	writeJSON(w, http.StatusOK, resp)
}

type validateFeeRequest struct {
	ChainID     int64  `json:"chainId"`
	UserAddress string `json:"userAddress"`
	Amount      string `json:"amount"`
	ClientFee   string `json:"clientFee"`
}

type validateFeeResponse struct {
	Valid         bool       `json:"valid"`
	FeePercentage string     `json:"feePercentage"`
	Authoritative tripleJSON `json:"authoritative"`
}

func (s *Server) handleValidateFee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req validateFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	eng, err := s.engineFor(req.ChainID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	claimed, err := decimal.NewFromString(strings.TrimSpace(req.ClientFee))
	if err != nil {
		http.Error(w, "clientFee is not a decimal number", http.StatusBadRequest)
		return
	}

	result, err := eng.Gateway.Validate(r.Context(), req.UserAddress, req.Amount, claimed)
	if err != nil {
		s.metrics.incValidation("error")
		s.writeError(w, err)
		return
	}
	if result.Valid {
		s.metrics.incValidation("valid")
	} else {
		s.metrics.incValidation("rejected")
	}

	writeJSON(w, http.StatusOK, validateFeeResponse{
		Valid:         result.Valid,
		FeePercentage: result.FeePercentage.String(),
		Authoritative: tripleToJSON(result.Authoritative, eng.Net),
	})
}

type feeTiersResponse struct {
	PlanFeeTiers  map[int]string `json:"planFeeTiers"`
	UserFee       string         `json:"userFeePercentage,omitempty"`
	Authoritative bool           `json:"authoritative"`
}

func (s *Server) handleFeeTiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	chainID, err := strconv.ParseInt(r.URL.Query().Get("chainId"), 10, 64)
	if err != nil {
		http.Error(w, "chainId is required", http.StatusBadRequest)
		return
	}
	eng, err := s.engineFor(chainID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tiers := eng.Resolver.PlanFeeTiers(r.Context())
	resp := feeTiersResponse{PlanFeeTiers: make(map[int]string, len(tiers)), Authoritative: true}
	for plan, pct := range tiers {
		resp.PlanFeeTiers[plan] = pct.String()
	}

	if user := r.URL.Query().Get("userAddress"); user != "" {
		pct, authoritative := eng.Resolver.DisplayFeePercentage(r.Context(), user)
		resp.UserFee = pct.String()
		resp.Authoritative = authoritative
	}
	writeJSON(w, http.StatusOK, resp)
}

type priceConvertRequest struct {
	ChainID   int64  `json:"chainId"`
	USDAmount string `json:"usdAmount"`
}

type priceConvertResponse struct {
	NativeAmount string `json:"nativeAmount"`
	NativePrice  string `json:"nativePrice"`
	USDAmount    string `json:"usdAmount"`
	ChainID      int64  `json:"chainId"`
}

func (s *Server) handlePriceConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req priceConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	eng, err := s.engineFor(req.ChainID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	native, quote, err := amount.ConvertUSDToNative(r.Context(), s.oracle, req.USDAmount, eng.Net)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priceConvertResponse{
		NativeAmount: native,
		NativePrice:  quote.String(),
		USDAmount:    req.USDAmount,
		ChainID:      req.ChainID,
	})
}

type createEscrowRequest struct {
	ChainID              int64    `json:"chainId"`
	Buyer                string   `json:"buyer"`
	Seller               string   `json:"seller"`
	Amount               string   `json:"amount"`
	DisputeWindowSeconds int64    `json:"disputeWindowSeconds"`
	Metadata             string   `json:"metadata"`
	TemplateID           string   `json:"templateId"`
	Approvers            []string `json:"approvers"`
	AutoFund             bool     `json:"autoFund"`
}

type createEscrowResponse struct {
	TxHash        string     `json:"txHash"`
	FeePercentage string     `json:"feePercentage"`
	Amounts       tripleJSON `json:"amounts"`
	Status        string     `json:"status"`
}

func (s *Server) handleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		http.Error(w, "missing X-Idempotency-Key header", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if existing, _ := s.store.Get(ctx, key); existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.StatusCode)
		_, _ = w.Write(existing.Response)
		s.metrics.incCreate("cached")
		return
	}

	var req createEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	eng, err := s.engineFor(req.ChainID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := eng.Escrows.Create(ctx, escrow.CreateParams{
		Buyer:         req.Buyer,
		Seller:        req.Seller,
		HumanAmount:   req.Amount,
		DisputeWindow: time.Duration(req.DisputeWindowSeconds) * time.Second,
		Metadata:      req.Metadata,
		TemplateID:    req.TemplateID,
		Approvers:     req.Approvers,
		AutoFund:      req.AutoFund,
	})
	if err != nil {
		s.metrics.incCreate("failed")
		s.writeError(w, err)
		return
	}
	s.metrics.incCreate("submitted")

	resp := createEscrowResponse{
		TxHash:        result.Tx.Hash,
		FeePercentage: result.FeePercentage.String(),
		Amounts:       tripleToJSON(result.Amounts, eng.Net),
		Status:        "submitted",
	}
	body, _ := json.Marshal(resp)
	_ = s.store.Save(ctx, key, idempotency.Record{
		StatusCode: http.StatusCreated,
		Response:   body,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(s.cfg.Service.IdempotencyWindow),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

type batchCreateRequest struct {
	ChainID              int64    `json:"chainId"`
	Sellers              []string `json:"sellers"`
	Amounts              []string `json:"amounts"`
	DisputeWindowSeconds []int64  `json:"disputeWindowSeconds"`
	Metadatas            []string `json:"metadatas"`
}

type batchCreateResponse struct {
	TxHash     string       `json:"txHash"`
	PerItem    []tripleJSON `json:"perItem"`
	TotalValue string       `json:"totalValue"`
}

func (s *Server) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if len(req.Sellers) == 0 || len(req.Sellers) != len(req.Amounts) {
		http.Error(w, "sellers and amounts must be non-empty and the same length", http.StatusBadRequest)
		return
	}

	eng, err := s.engineFor(req.ChainID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	items := make([]amount.BatchItem, len(req.Sellers))
	for i := range req.Sellers {
		items[i] = amount.BatchItem{Seller: req.Sellers[i], HumanAmount: req.Amounts[i]}
	}
	windows := make([]time.Duration, len(req.DisputeWindowSeconds))
	for i, secs := range req.DisputeWindowSeconds {
		windows[i] = time.Duration(secs) * time.Second
	}

	result, err := eng.Escrows.CreateBatch(r.Context(), escrow.BatchCreateParams{
		Items:          items,
		DisputeWindows: windows,
		Metadatas:      req.Metadatas,
	})
	if err != nil {
		s.metrics.incCreate("batch_failed")
		s.writeError(w, err)
		return
	}
	s.metrics.incCreate("batch_submitted")

	perItem := make([]tripleJSON, len(result.PerItem))
	for i, triple := range result.PerItem {
		perItem[i] = tripleToJSON(triple, eng.Net)
	}
	writeJSON(w, http.StatusCreated, batchCreateResponse{
		TxHash:     result.Tx.Hash,
		PerItem:    perItem,
		TotalValue: result.Total.String(),
	})
}

type transitionRequest struct {
	ChainID   int64  `json:"chainId"`
	EscrowID  int64  `json:"escrowId"`
	Operation string `json:"operation"`
	Caller    string   `json:"caller"`
	Buyer     string   `json:"buyer"`
	Seller    string   `json:"seller"`
	Approvers []string `json:"approvers"` // required for approve
	Amount    string   `json:"amount"`    // required for fund
	Reason    string   `json:"reason"`
}

type transitionResponse struct {
	TxHash         string `json:"txHash"`
	PreviousStatus string `json:"previousStatus"`
	ExpectedStatus string `json:"expectedStatus"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	eng, err := s.engineFor(req.ChainID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx := r.Context()
	op := escrow.Operation(req.Operation)

	// The ledger owns the state: fetch the current status instead of
	// trusting whatever the client believes it is.
	current, err := eng.Escrows.RefreshStatus(ctx, req.EscrowID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	next, err := escrow.NextStatus(current, op)
	if err != nil {
		s.metrics.incTransition(req.Operation, "illegal")
		s.writeError(w, err)
		return
	}

	ag := escrow.Agreement{
		ID:        req.EscrowID,
		Buyer:     req.Buyer,
		Seller:    req.Seller,
		Approvers: req.Approvers,
		Status:    current,
	}
	if op == escrow.OpFund {
		// Funding value is recomputed through the resolver so the attached
		// value matches the creation-time quote for the same amount.
		pct, err := eng.Resolver.ResolveFeePercentage(ctx, req.Seller)
		if err != nil {
			s.writeError(w, err)
			return
		}
		triple, err := amount.Decompose(req.Amount, pct, eng.Net)
		if err != nil {
			s.writeError(w, err)
			return
		}
		ag.Amounts = triple
	}

	tx, err := eng.Escrows.Transition(ctx, ag, op, escrow.TransitionParams{
		Caller: req.Caller,
		Reason: req.Reason,
	})
	if err != nil {
		s.metrics.incTransition(req.Operation, "failed")
		s.writeError(w, err)
		return
	}
	s.metrics.incTransition(req.Operation, "submitted")

	writeJSON(w, http.StatusAccepted, transitionResponse{
		TxHash:         tx.Hash,
		PreviousStatus: current.String(),
		ExpectedStatus: next.String(),
	})
}

type operationsResponse struct {
	Status     string   `json:"status"`
	Operations []string `json:"operations"`
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, err := strconv.ParseUint(r.URL.Query().Get("status"), 10, 8)
	if err != nil {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}
	status := escrow.Status(raw)
	if !status.Valid() {
		http.Error(w, "unknown status code", http.StatusBadRequest)
		return
	}

	ops := escrow.NextOperations(status)
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = string(op)
	}
	writeJSON(w, http.StatusOK, operationsResponse{Status: status.String(), Operations: names})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	type chainHealth struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}
	chains := make(map[string]chainHealth, len(s.engines))
	for id, eng := range s.engines {
		info := chainHealth{Connected: true}
		if eng.Ping != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := eng.Ping(pingCtx); err != nil {
				info.Connected = false
				info.Error = err.Error()
				overallHealthy = false
			}
			cancel()
		}
		chains[strconv.FormatInt(id, 10)] = info
	}

	dbInfo := chainHealth{Connected: true}
	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status   string                 `json:"status"`
		Chains   map[string]chainHealth `json:"chains"`
		Database chainHealth            `json:"database"`
	}{
		Status:   status,
		Chains:   chains,
		Database: dbInfo,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", strconv.FormatInt(time.Now().UnixNano(), 10))
		}
		next.ServeHTTP(w, r)
	})
}
