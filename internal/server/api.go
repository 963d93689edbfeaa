package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/billed/internal/bill"
)

// maxUploadSize bounds receipt uploads; phone photos can be large.
const maxUploadSize = int64(50 << 20)

const maxBillSize = int64(1 << 20)

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// handleListBills returns the bills, limited to ?email= when given
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	var store bill.Store = s.cfg.API
	if email := r.URL.Query().Get("email"); email != "" {
		store = s.cfg.API.ForEmail(email)
	}

	bills, err := store.Bills().List(r.Context())
	if err != nil {
		slog.Error("Error listing bills", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

// handleCreateBill stores an uploaded receipt and its draft bill
func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.cfg.API.Bills().Create(r.Context(), bill.CreateRequest{
		Email:       r.FormValue("email"),
		FileName:    upload.Name,
		ContentType: upload.ContentType,
		Data:        upload.Data,
	})
	if err != nil {
		slog.Error("Error creating bill", "filename", upload.Name, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleUpdateBill replaces the bill named in the path
func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		jsonError(w, "Bill ID required", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBillSize))
	if err != nil {
		jsonError(w, "Error reading bill", http.StatusBadRequest)
		return
	}

	err = s.cfg.API.Bills().Update(r.Context(), bill.UpdateRequest{Data: string(data), Selector: id})
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, bill.ErrNotFound):
		jsonError(w, "Bill not found", http.StatusNotFound)
	case errors.Is(err, bill.ErrTransition):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		jsonError(w, "Invalid bill: "+err.Error(), http.StatusBadRequest)
	default:
		slog.Error("Error updating bill", "id", id, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleGetFile serves a stored receipt
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	data, err := s.cfg.Files.Get(r.Context(), key)
	if err != nil {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

type upload struct {
	Name        string
	ContentType string
	Data        []byte
}

var errNoFile = errors.New("No file was selected. Please choose a file to upload.")

// readUpload reads the "file" part of a multipart form
func readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.New("File is too large. Maximum size is 50MB. Please compress or resize your image.")
		}
		return nil, errors.New("Error parsing form")
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, errNoFile
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		return nil, errors.New("Error reading file. Please try again.")
	}

	return &upload{
		Name:        header.Filename,
		ContentType: contentType(header.Header.Get("Content-Type"), header.Filename),
		Data:        data,
	}, nil
}

// contentType trusts the part header unless it is missing or generic, then
// falls back on the file extension.
func contentType(declared, filename string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}
