package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"contract-insights/internal/app"
	"contract-insights/internal/document"
	"contract-insights/internal/httputil"
	"contract-insights/internal/insights"
	"contract-insights/internal/upload"
)

const (
	shutdownTimeout = 15 * time.Second
	// multipart parts above this size spill to temporary files
	multipartMemory = 32 << 20
	// chat bodies carry several base64 contracts
	maxChatContracts = 10
)

type uploadedContract struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	Content  string `json:"contentDataUri"`
	Pages    int    `json:"pages"`
}

type uploadFailure struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

type uploadResponse struct {
	Contracts []uploadedContract `json:"contracts"`
	Errors    []uploadFailure    `json:"errors"`
}

type chatRequest struct {
	UserQuery string                `json:"userQuery"`
	Contracts []document.Descriptor `json:"contracts" validate:"omitempty,max=10,dive"`
}

type summarizeRequest struct {
	ContractDataURI string `json:"contractDataUri" validate:"required"`
	FileName        string `json:"fileName"`
}

type exportRequest struct {
	FileName string `json:"fileName" validate:"required"`
	Summary  string `json:"summary" validate:"required"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			deps.Log.Warn("failed to release dependencies", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		deps.Log.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		deps.Log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log, time.Duration(deps.Config.RequestTimeout)*time.Second)

	r.Post("/api/contracts/upload", uploadHandler(deps))
	r.Post("/api/contracts/chat", chatHandler(deps))
	r.Post("/api/contracts/summarize", summarizeHandler(deps))
	r.Post("/api/contracts/summary/export", exportHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps))
	return r
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	v := upload.Validator{MaxFileSize: deps.Config.MaxUploadSize}
	// room for several files at the ceiling plus one oversized file to report
	maxBody := deps.Config.MaxUploadSize * (maxChatContracts + 1)

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httputil.Fail(deps.Log, w, fmt.Sprintf("upload too large (max %d bytes)", maxBody), err, http.StatusRequestEntityTooLarge)
				return
			}
			httputil.Fail(deps.Log, w, "multipart form with files is required", err, http.StatusBadRequest)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			httputil.Fail(deps.Log, w, "at least one file is required", nil, http.StatusBadRequest)
			return
		}

		files := make([]upload.File, 0, len(headers))
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
				return
			}
			// one byte past the ceiling is enough to reject an oversized file
			data, err := io.ReadAll(io.LimitReader(f, v.MaxFileSize+1))
			_ = f.Close()
			if err != nil {
				httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
				return
			}
			files = append(files, upload.File{Name: fh.Filename, MIMEType: fh.Header.Get("Content-Type"), Data: data})
		}

		results, failed := v.ValidateAll(files)
		resp := uploadResponse{Contracts: []uploadedContract{}, Errors: []uploadFailure{}}
		for _, res := range results {
			resp.Contracts = append(resp.Contracts, uploadedContract{
				ID:       res.Descriptor.ID,
				FileName: res.Descriptor.FileName,
				Content:  res.Descriptor.Content,
				Pages:    res.Pages,
			})
		}
		for _, fe := range failed {
			deps.Log.Warn("upload rejected", "file", fe.FileName, "err", fe.Err)
			resp.Errors = append(resp.Errors, uploadFailure{FileName: fe.FileName, Error: fe.Err.Error()})
		}

		status := http.StatusOK
		if len(resp.Contracts) == 0 {
			status = http.StatusBadRequest
		}
		httputil.WriteJSON(w, status, resp)
	}
}

func chatHandler(deps app.Deps) http.HandlerFunc {
	maxBody := encodedLimit(deps.Config.MaxUploadSize) * maxChatContracts

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		var req chatRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			writeError(deps.Log, w, err)
			return
		}
		for _, c := range req.Contracts {
			if document.IsDataURI(c.Content) {
				if _, err := document.ParseDataURI(c.Content); err != nil {
					writeError(deps.Log, w, fmt.Errorf("contract %q: %w", c.FileName, err))
					return
				}
			}
			if size := document.DecodedSize(c.Content); size > deps.Config.MaxUploadSize {
				httputil.Fail(deps.Log, w, fmt.Sprintf("contract %q exceeds %d bytes", c.FileName, deps.Config.MaxUploadSize), nil, http.StatusRequestEntityTooLarge)
				return
			}
		}

		res, err := deps.Insights.ChatWithContracts(r.Context(), insights.ChatQuery{
			UserQuery: req.UserQuery,
			Contracts: req.Contracts,
		})
		if err != nil {
			writeError(deps.Log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func summarizeHandler(deps app.Deps) http.HandlerFunc {
	limit := deps.Config.MaxSummaryUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, encodedLimit(limit))
		var req summarizeRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			writeError(deps.Log, w, err)
			return
		}
		if document.IsDataURI(req.ContractDataURI) {
			if _, err := document.ParseDataURI(req.ContractDataURI); err != nil {
				writeError(deps.Log, w, err)
				return
			}
		}
		if size := document.DecodedSize(req.ContractDataURI); size > limit {
			httputil.Fail(deps.Log, w, fmt.Sprintf("contract exceeds %d bytes", limit), nil, http.StatusRequestEntityTooLarge)
			return
		}

		fileName := req.FileName
		if fileName == "" {
			fileName = "contract.pdf"
		}
		res, err := deps.Insights.SummarizeContract(r.Context(), document.Descriptor{
			FileName: fileName,
			Content:  req.ContractDataURI,
		})
		if err != nil {
			writeError(deps.Log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func exportHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req exportRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			writeError(deps.Log, w, err)
			return
		}
		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": exportFileName(req.FileName)})
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", disposition)
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, req.Summary); err != nil {
			deps.Log.Warn("export write failed", "err", err)
		}
	}
}

// exportFileName turns "lease.pdf" into "lease-summary.txt".
func exportFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "contract"
	}
	return base + "-summary.txt"
}

// encodedLimit is the JSON body ceiling for a payload of n decoded bytes.
func encodedLimit(n int64) int64 {
	return n*4/3 + 64<<10
}

// writeError maps service and request errors to HTTP responses.
func writeError(log *slog.Logger, w http.ResponseWriter, err error) {
	var (
		verr     *httputil.ValidationError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		httputil.Fail(log, w, verr.Error(), err, http.StatusBadRequest)
	case errors.As(err, &tooLarge):
		httputil.Fail(log, w, fmt.Sprintf("request body too large (max %d bytes)", tooLarge.Limit), err, http.StatusRequestEntityTooLarge)
	case errors.Is(err, insights.ErrEmptyQuery),
		errors.Is(err, insights.ErrInvalidDocument),
		errors.Is(err, insights.ErrMissingText),
		errors.Is(err, document.ErrInvalidDataURI):
		httputil.Fail(log, w, err.Error(), err, http.StatusBadRequest)
	case errors.Is(err, insights.ErrEmptyGeneration):
		httputil.Fail(log, w, insights.ErrEmptyGeneration.Error(), err, http.StatusBadGateway)
	case errors.Is(err, insights.ErrInvalidOutputShape):
		httputil.Fail(log, w, "invalid model output: "+err.Error(), err, http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		// checked before backend errors, which wrap the deadline when a call times out
		httputil.Fail(log, w, "request timed out", err, http.StatusGatewayTimeout)
	case errors.Is(err, insights.ErrBackendUnavailable):
		httputil.Fail(log, w, err.Error(), err, http.StatusServiceUnavailable)
	default:
		httputil.Fail(log, w, "internal error", err, http.StatusInternalServerError)
	}
}
