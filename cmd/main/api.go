package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CTAG07/charlm/pkg/ngram"
	"github.com/google/uuid"
)

const (
	// maxCorpusBytes caps the size of a training request body.
	maxCorpusBytes    = 64 << 20
	// maxRequestBytes caps the size of the small JSON bodies of generate and prune.
	maxRequestBytes   = 1 << 20
	// maxGenerateLength caps how many characters one generate request may ask for.
	maxGenerateLength = 1 << 16
)

// ModelAPI holds the dependencies for the model API handlers.
type ModelAPI struct {
	store            *ngram.Store
	trainConcurrency int
	logger           *slog.Logger
}

// NewModelAPI creates a new instance of the ModelAPI.
func NewModelAPI(store *ngram.Store, trainConcurrency int, logger *slog.Logger) *ModelAPI {
	return &ModelAPI{
		store:            store,
		trainConcurrency: trainConcurrency,
		logger:           logger,
	}
}

// RegisterRoutes sets up the routing for all /api endpoints.
func (m *ModelAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/models", m.handleListAndCreateModels)
	mux.HandleFunc("/api/models/", m.handleModelByName)
	mux.HandleFunc("/api/import", m.handleImport)
	mux.HandleFunc("/api/stats", m.handleStats)
}

type CreateModelRequest struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
	Text  string `json:"text"`
}

type GenerateRequest struct {
	Length     int    `json:"length"`
	Seed       string `json:"seed"`
	Selector   string `json:"selector"`
	RandomSeed uint64 `json:"random_seed"`
}

type GenerateResponse struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type PruneRequest struct {
	MinFreq int `json:"minFreq"`
}

// handleListAndCreateModels handles GET for listing and POST for training a new model.
func (m *ModelAPI) handleListAndCreateModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		models, err := m.store.GetModelInfos(r.Context())
		if err != nil {
			m.logger.Error("Failed to get model infos", "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
			return
		}
		modelList := make([]ngram.ModelInfo, 0, len(models))
		for _, model := range models {
			modelList = append(modelList, model)
		}
		respondWithJSON(w, http.StatusOK, modelList)

	case http.MethodPost:
		var req CreateModelRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCorpusBytes)).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if req.Name == "" || req.Order <= 0 {
			respondWithError(w, http.StatusBadRequest, "Model name and a positive order are required")
			return
		}
		info, ok := m.trainAndSave(w, r, req.Name, req.Order, req.Text)
		if !ok {
			return
		}
		respondWithJSON(w, http.StatusCreated, info)

	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleModelByName routes actions for a specific model, e.g., train, generate, prune, export, delete.
// The train action adds the counts of the posted text to the stored model.
func (m *ModelAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/models/")
	parts := strings.Split(path, "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	model, err := m.store.GetModelInfo(r.Context(), modelName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		m.logger.Error("Failed to get model info by name", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	if len(parts) == 1 { // Path is just /api/models/{name}
		if r.Method == http.MethodDelete {
			if err = m.store.RemoveModel(r.Context(), model); err != nil {
				m.logger.Error("Failed to remove model", "name", modelName, "error", err)
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove model: %v", err))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.Header().Set("Allow", "DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	action := parts[1]
	switch action {
	case "train":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCorpusBytes))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Could not read training text: %v", err))
			return
		}
		lm, ok := m.train(w, r, model.Name, model.Order, string(body))
		if !ok {
			return
		}
		if err = m.store.MergeModel(r.Context(), model, lm); err != nil {
			m.logger.Error("Failed to merge model", "name", modelName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to merge model: %v", err))
			return
		}
		w.WriteHeader(http.StatusAccepted)

	case "generate":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		req := GenerateRequest{Length: 100}
		if err = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if req.Length > maxGenerateLength {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Length must not exceed %d", maxGenerateLength))
			return
		}
		selector, err := newSelector(req.Selector, req.RandomSeed)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		_, lm, err := m.store.LoadModel(r.Context(), model.Name)
		if err != nil {
			m.logger.Error("Failed to load model", "name", modelName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load model: %v", err))
			return
		}
		gen := ngram.NewGenerator(ngram.WithSelector(selector), ngram.WithLogger(m.logger))
		text, err := gen.Generate(lm, model.Order, req.Length, ngram.Normalize(req.Seed))
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Generation failed: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, GenerateResponse{Model: model.Name, Text: text})

	case "prune":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req PruneRequest
		if err = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if err = m.store.PruneModel(r.Context(), model, req.MinFreq); err != nil {
			m.logger.Error("Failed to prune model", "name", modelName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Pruning failed: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "export":
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		var buf bytes.Buffer
		if err = m.store.ExportModel(r.Context(), model, &buf); err != nil {
			m.logger.Error("Failed to export model", "name", modelName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", modelName))
		if _, err = buf.WriteTo(w); err != nil {
			m.logger.Error("Failed to write model export", "name", modelName, "error", err)
		}

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// train builds a model from text, writing an error response and returning
// false on failure.
func (m *ModelAPI) train(w http.ResponseWriter, r *http.Request, name string, order int, text string) (ngram.LanguageModel, bool) {
	lm, err := ngram.Train(r.Context(), text, order,
		ngram.WithConcurrency(m.trainConcurrency),
		ngram.WithTrainLogger(m.logger),
	)
	if err != nil {
		m.logger.Error("Failed to train model", "name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Training failed: %v", err))
		return nil, false
	}
	return lm, true
}

// trainAndSave trains a model from text and stores it under name, replacing
// any model of that name. It writes an error response and returns false on
// failure.
func (m *ModelAPI) trainAndSave(w http.ResponseWriter, r *http.Request, name string, order int, text string) (ngram.ModelInfo, bool) {
	lm, ok := m.train(w, r, name, order, text)
	if !ok {
		return ngram.ModelInfo{}, false
	}
	info, err := m.store.SaveModel(r.Context(), name, order, lm)
	if err != nil {
		m.logger.Error("Failed to save model", "name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save model: %v", err))
		return ngram.ModelInfo{}, false
	}
	return info, true
}

// handleImport imports a model from an uploaded JSON file.
func (m *ModelAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	info, err := m.store.ImportModel(r.Context(), http.MaxBytesReader(w, r.Body, maxCorpusBytes))
	if err != nil {
		m.logger.Error("Failed to import model", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, ngram.ErrUnsupportedVersion) || errors.Is(err, ngram.ErrInvalidOrder) {
			status = http.StatusBadRequest
		}
		respondWithError(w, status, fmt.Sprintf("Import failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusAccepted, info)
}

// handleStats returns statistics for every stored model.
func (m *ModelAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := m.store.GetStats(r.Context())
	if err != nil {
		m.logger.Error("Failed to get stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// withRequestLogging tags every request with an id and logs it once served.
func withRequestLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("Request served",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"elapsed", time.Since(start),
		)
	})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
