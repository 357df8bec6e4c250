package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"image-compressor-go/internal/batch"
	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/export"
	"image-compressor-go/internal/metadata"
	"image-compressor-go/internal/metrics"
	"image-compressor-go/internal/statistics"
	"image-compressor-go/internal/validate"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// multipartOverhead is allowed on top of the file payload for form fields and boundaries.
const multipartOverhead = 1 << 20

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	processor *batch.Processor
	inspector *metadata.Inspector
	stats     *statistics.Statistics

	// Current batch state
	operationMutex sync.RWMutex
	isRunning      bool
	currentJob     string
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ItemResponse is one image of a batch response. Data is base64 in JSON.
type ItemResponse struct {
	Name           string  `json:"name"`
	FileName       string  `json:"file_name,omitempty"`
	OriginalSize   int     `json:"original_size"`
	CompressedSize int     `json:"compressed_size,omitempty"`
	QualityUsed    int     `json:"quality_used,omitempty"`
	Ratio          float64 `json:"compression_ratio"`
	Attempts       int     `json:"attempts,omitempty"`
	FellBack       bool    `json:"fell_back"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Data           []byte  `json:"data,omitempty"`
	Error          string  `json:"error,omitempty"`
}

type BatchResponse struct {
	JobID     string         `json:"job_id"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []ItemResponse `json:"results"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, engine *compressor.Engine) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		inspector: metadata.NewInspector(log),
		stats:     statistics.NewStatistics(),
	}

	checker := validate.NewChecker(cfg.Upload.MaxFileSize, cfg.Upload.AllowedMIME)
	s.processor = batch.NewProcessorWithLogHook(engine, log, s.stats, s.forwardLog).WithChecker(checker)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.recoveryMiddleware, s.loggingMiddleware, securityHeaders)

	// API routes
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/batch", s.handleBatch).Methods("POST")
	api.HandleFunc("/inspect", s.handleInspect).Methods("POST")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.wsMutex.Lock()
	for conn := range s.wsClients {
		conn.Close()
		delete(s.wsClients, conn)
	}
	s.wsMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeUploadError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, "File is required", http.StatusBadRequest)
		return
	}
	data, err := readPart(file)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}

	req, err := s.parseRequest(r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := s.processor.Process(compressor.SourceImage{Name: header.Filename, Data: data}, req)
	if res.Err != nil {
		s.writeError(w, res.Err.Error(), statusFor(res.Err))
		return
	}

	name := export.FileName(header.Filename, s.cfg.Output.Prefix, s.cfg.Output.Extension)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Quality-Used", strconv.Itoa(res.QualityUsed))
	w.Header().Set("X-Compression-Ratio", strconv.FormatFloat(res.Ratio, 'f', 2, 64))
	w.Header().Set("X-Original-Size", strconv.Itoa(res.OriginalSize))
	w.Header().Set("X-Fallback", strconv.FormatBool(res.FellBack))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	// Check if already running
	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Batch already in progress", http.StatusConflict)
		return
	}
	jobID := uuid.NewString()
	s.isRunning = true
	s.currentJob = jobID
	s.operationMutex.Unlock()

	defer func() {
		s.operationMutex.Lock()
		s.isRunning = false
		s.currentJob = ""
		s.operationMutex.Unlock()
	}()

	limit := s.cfg.Upload.MaxFileSize*int64(s.cfg.Performance.MaxBatchSize) + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeUploadError(w, err)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, "At least one file is required", http.StatusBadRequest)
		return
	}
	if len(headers) > s.cfg.Performance.MaxBatchSize {
		s.writeError(w, fmt.Sprintf("Too many files: %d (limit %d)", len(headers), s.cfg.Performance.MaxBatchSize), http.StatusBadRequest)
		return
	}

	req, err := s.parseRequest(r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]compressor.SourceImage, 0, len(headers))
	for _, fh := range headers {
		item := compressor.SourceImage{Name: fh.Filename}
		if f, err := fh.Open(); err != nil {
			s.log.Warnf("Could not open upload %s: %v", fh.Filename, err)
		} else if item.Data, err = readPart(f); err != nil {
			s.log.Warnf("Could not read upload %s: %v", fh.Filename, err)
		}
		items = append(items, item)
	}

	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"job_id": jobID,
		"total":  len(items),
		"mode":   req.Mode.String(),
	})

	results := s.processor.Run(r.Context(), items, req, func(p batch.Progress) {
		data := map[string]interface{}{
			"job_id":   jobID,
			"index":    p.Index,
			"total":    p.Total,
			"fraction": p.Fraction,
			"name":     p.Name,
		}
		if p.Err != nil {
			data["error"] = p.Err.Error()
		}
		s.broadcastWSMessage("batch_progress", data)
	})

	resp := BatchResponse{JobID: jobID, Total: len(results), Results: make([]ItemResponse, 0, len(results))}
	for _, res := range results {
		item := ItemResponse{
			Name:           res.Name,
			OriginalSize:   res.OriginalSize,
			CompressedSize: res.CompressedSize,
			QualityUsed:    res.QualityUsed,
			Ratio:          res.Ratio,
			Attempts:       res.Attempts,
			FellBack:       res.FellBack,
			Width:          res.Width,
			Height:         res.Height,
			Data:           res.Data,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
			resp.Failed++
		} else {
			item.FileName = export.FileName(res.Name, s.cfg.Output.Prefix, s.cfg.Output.Extension)
			resp.Succeeded++
		}
		resp.Results = append(resp.Results, item)
	}

	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"job_id":    jobID,
		"succeeded": resp.Succeeded,
		"failed":    resp.Failed,
		"summary":   s.stats.GetSummary(),
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Compressed %d of %d images", resp.Succeeded, resp.Total),
		Data:    resp,
	})
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeUploadError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, "File is required", http.StatusBadRequest)
		return
	}
	data, err := readPart(file)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}

	summary, err := s.inspector.InspectBytes(header.Filename, data)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    summary,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	job := s.currentJob
	s.operationMutex.RUnlock()

	s.wsMutex.Lock()
	clients := len(s.wsClients)
	s.wsMutex.Unlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"job_id":     job,
			"ws_clients": clients,
			"statistics": s.stats.Snapshot(),
		},
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary": s.stats.GetSummary(),
			"images":  s.stats.Snapshot(),
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	metrics.UpdateWebSocketClients(len(s.wsClients))
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		metrics.UpdateWebSocketClients(len(s.wsClients))
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) forwardLog(level, message string) {
	s.broadcastWSMessage("log", map[string]interface{}{
		"level":   level,
		"message": message,
	})
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// gorilla/websocket allows one concurrent writer per connection.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			// Remove failed connection
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
	metrics.UpdateWebSocketClients(len(s.wsClients))
}

// parseRequest builds a compression request from form or query values,
// falling back to the configured defaults.
func (s *Server) parseRequest(r *http.Request) (compressor.Request, error) {
	req := compressor.Request{
		Quality:      s.cfg.Compression.Quality,
		TargetSizeKB: s.cfg.Compression.TargetSizeKB,
	}

	modeName := strings.ToLower(r.FormValue("mode"))
	if modeName == "" {
		if r.FormValue("target_kb") != "" {
			modeName = "target"
		} else {
			modeName = s.cfg.Compression.Mode
		}
	}
	mode, err := compressor.ParseMode(modeName)
	if err != nil {
		return req, err
	}
	req.Mode = mode

	if v := r.FormValue("quality"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid quality: %q", v)
		}
		req.Quality = q
	}
	if v := r.FormValue("target_kb"); v != "" {
		kb, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid target_kb: %q", v)
		}
		req.TargetSizeKB = kb
	}

	return req, req.Validate()
}

func readPart(f multipart.File) ([]byte, error) {
	defer f.Close()
	return io.ReadAll(f)
}

// statusFor maps processing errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, validate.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, validate.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, validate.ErrEmpty),
		errors.Is(err, compressor.ErrInvalidRequest),
		errors.Is(err, compressor.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, compressor.ErrDecode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, "Upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	s.writeError(w, fmt.Sprintf("Invalid upload: %v", err), http.StatusBadRequest)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
