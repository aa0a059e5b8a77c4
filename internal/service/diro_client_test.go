package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"doc-verifier/internal/models"
	"doc-verifier/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDiroClient(url string) *DiroClient {
	cfg := &config.DiroConfig{
		APIURL:          url + "/smartFeedback",
		SmartUploadURL:  url + "/smartUpload",
		APIKey:          "d-test",
		AuthToken:       "token",
		DefaultButtonID: "button-1",
		WarnTrackID1:    "t1",
	}
	return NewDiroClient(cfg, http.DefaultClient, zap.NewNop())
}

func TestDiroExtractRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/smartFeedback", r.URL.Path)
		assert.Equal(t, "d-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "button-1", r.FormValue("buttonid"))

		var cases map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("warn_cases")), &cases))
		assert.Equal(t, map[string]string{"trackid1": "t1", "trackid2": ""}, cases)

		f, hdr, err := r.FormFile("pdffile")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "statement.pdf", hdr.Filename)
		assert.Equal(t, "application/pdf", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "%PDF-1.7", string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"document_type": "bank_statement",
			"name": true,
			"address": false,
			"accountnumber": true,
			"accountnumber_value": ["4321"],
			"period": "2024/01/01-2024/06/30",
			"docid": "DOC-9",
			"extra": {"ignored": 1}
		}`))
	}))
	defer srv.Close()

	c := newTestDiroClient(srv.URL)
	res, err := c.ExtractDocument(context.Background(), testFile, []byte("%PDF-1.7"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Name)
	assert.False(t, res.Address)
	assert.Equal(t, []string{"4321"}, res.AccountNumberValue)
	assert.Equal(t, "DOC-9", res.DocID)
	assert.False(t, res.IsUnprocessable())
}

func TestDiroExtractEscapesFileName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("pdffile")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, `bank "june"\2024.pdf`, hdr.Filename)
		assert.Equal(t, "button-1", r.FormValue("buttonid"))
		_, _ = w.Write([]byte(`{"docid": "DOC-1"}`))
	}))
	defer srv.Close()

	file := models.FileRef{Name: `bank "june"\2024.pdf`, MimeType: "application/pdf"}
	res, err := newTestDiroClient(srv.URL).ExtractDocument(context.Background(), file, []byte("%PDF"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "DOC-1", res.DocID)
}

func TestEscapeQuotes(t *testing.T) {
	assert.Equal(t, `a\"b\\\\c`, escapeQuotes(`a"b\\c`))
}

func TestDiroExtractOutcomes(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantNil       bool
		wantErr       bool
		unprocessable bool
	}{
		{"empty body", http.StatusOK, "", true, false, false},
		{"null body", http.StatusOK, "null", true, false, false},
		{"category invalid", http.StatusOK, `{"isCategoryInvalid": true}`, false, false, true},
		{"server error", http.StatusInternalServerError, "boom", true, true, false},
		{"unreadable", http.StatusUnprocessableEntity, "blurry", true, true, true},
		{"bad json", http.StatusOK, "{", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := newTestDiroClient(srv.URL).ExtractDocument(context.Background(), testFile, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.unprocessable, errors.Is(err, ErrUnprocessable))
			} else {
				require.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, res)
			} else {
				require.NotNil(t, res)
				assert.Equal(t, tt.unprocessable, res.IsUnprocessable())
			}
		})
	}
}

func TestDiroCommit(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    *models.CommitResult
		wantErr bool
	}{
		{"ok", http.StatusOK, `{"error": false, "message": "Uploaded"}`, &models.CommitResult{OK: true, Message: "Uploaded"}, false},
		{"rejected", http.StatusOK, `{"error": true, "message": "Invalid docid"}`, &models.CommitResult{OK: false, Message: "Invalid docid"}, false},
		{"http failure", http.StatusBadGateway, "upstream", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/smartUpload", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "DOC-9", body["docid"])

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := newTestDiroClient(srv.URL).CommitDocument(context.Background(), "DOC-9")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestDiroMissingURLs(t *testing.T) {
	c := NewDiroClient(&config.DiroConfig{}, nil, zap.NewNop())

	_, err := c.ExtractDocument(context.Background(), testFile, nil)
	assert.Error(t, err)
	_, err = c.CommitDocument(context.Background(), "DOC")
	assert.Error(t, err)
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectMimeType("a.PDF"))
	assert.Equal(t, "image/png", detectMimeType("scan.png"))
	assert.Equal(t, "application/octet-stream", detectMimeType("noext"))
}
