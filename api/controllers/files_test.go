package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/semanticpdf/semanticpdf-backend/internal/files"
	"github.com/semanticpdf/semanticpdf-backend/pkg/enums"
)

type stubFilesService struct {
	file *files.FileDTO
	list *files.ListResponse

	createInput files.CreateFileInput
	listLimit   int
	listCursor  string
	deletedID   uuid.UUID
}

func (s *stubFilesService) Create(ctx context.Context, userID uuid.UUID, input files.CreateFileInput) (*files.FileDTO, error) {
	s.createInput = input
	return s.file, nil
}

func (s *stubFilesService) List(ctx context.Context, userID uuid.UUID, limit int, cursor string) (*files.ListResponse, error) {
	s.listLimit = limit
	s.listCursor = cursor
	return s.list, nil
}

func (s *stubFilesService) GetStatus(ctx context.Context, userID, fileID uuid.UUID) (*files.FileDTO, error) {
	return s.file, nil
}

func (s *stubFilesService) Delete(ctx context.Context, userID, fileID uuid.UUID) error {
	s.deletedID = fileID
	return nil
}

func (s *stubFilesService) Ingest(ctx context.Context, userID, fileID uuid.UUID, input files.IngestInput) (*files.FileDTO, error) {
	return s.file, nil
}

func TestFileCreateReturns201(t *testing.T) {
	service := &stubFilesService{
		file: &files.FileDTO{ID: uuid.New(), Name: "paper.pdf", UploadStatus: enums.FileUploadStatusPending},
	}
	handler := FileCreate(service, quietLogger())

	body := []byte(`{"name":"paper.pdf","size_bytes":2048,"page_count":12}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/files", body))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.createInput.Name != "paper.pdf" || service.createInput.PageCount != 12 {
		t.Fatalf("input not forwarded: %+v", service.createInput)
	}

	var envelope struct {
		Data files.FileDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.UploadStatus != enums.FileUploadStatusPending {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestFileCreateRejectsEmptyBody(t *testing.T) {
	handler := FileCreate(&stubFilesService{}, quietLogger())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/files", []byte(`{}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestFileListValidatesLimit(t *testing.T) {
	service := &stubFilesService{list: &files.ListResponse{Files: []files.FileDTO{}}}
	handler := FileList(service, quietLogger())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/files?limit=500&cursor=abc", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range limit, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/files?limit=25&cursor=abc", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if service.listLimit != 25 || service.listCursor != "abc" {
		t.Fatalf("pagination not forwarded: limit=%d cursor=%q", service.listLimit, service.listCursor)
	}
}

func TestFileStatusRejectsMalformedID(t *testing.T) {
	handler := FileStatus(&stubFilesService{}, quietLogger())

	req := authedRequest(http.MethodGet, "/api/v1/files/not-a-uuid/status", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("fileId", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestFileDeleteForwardsID(t *testing.T) {
	service := &stubFilesService{}
	handler := FileDelete(service, quietLogger())

	fileID := uuid.New()
	req := authedRequest(http.MethodDelete, "/api/v1/files/"+fileID.String(), nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("fileId", fileID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if service.deletedID != fileID {
		t.Fatalf("expected delete of %s, got %s", fileID, service.deletedID)
	}
}
